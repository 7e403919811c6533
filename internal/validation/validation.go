// Package validation checks inbound subscribe and search requests.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"

	"github.com/kosarica/deal-service/internal/types"
)

// Reasons reported to callers
const (
	ReasonMissingFields   = "Missing fields"
	ReasonInvalidPhone    = "Invalid phone number"
	ReasonInvalidChatID   = "Invalid chat_id"
	ReasonDiscountRange   = "Discount percentage must be between 0 and 100"
	ReasonInvalidChannel  = "Invalid notification_channel"
	ReasonInvalidDiscount = "Discount percentage must be a number"
)

// FieldError is a validation failure with a caller-facing reason
type FieldError struct {
	Field  string
	Reason string
	Detail string
}

func (e *FieldError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

// IsFieldError reports whether err carries a FieldError
func IsFieldError(err error) bool {
	var fe *FieldError
	return errors.As(err, &fe)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the channel rules registered
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
			_, ok := types.ParseChannel(fl.Field().String())
			return ok
		})
		_ = v.RegisterValidation("whatsapp_phone", func(fl validator.FieldLevel) bool {
			return ValidatePhone(fl.Field().String()).Valid
		})
		_ = v.RegisterValidation("telegram_chat_id", func(fl validator.FieldLevel) bool {
			return ValidChatID(fl.Field().String())
		})
		v.RegisterStructValidation(subscribeStructLevel, SubscribeRequest{})
		v.RegisterStructValidation(searchStructLevel, SearchRequest{})
		validate = v
	})
	return validate
}

// Percent is a percentage that decodes from a JSON number or a numeric string
// such as "10" or "12.5%"
type Percent float64

func (p *Percent) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if unq, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unq)
	}
	raw = strings.TrimSuffix(raw, "%")
	if raw == "" {
		return &FieldError{Field: "desired_discount_percentage", Reason: ReasonMissingFields, Detail: "desired_discount_percentage"}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return &FieldError{Field: "desired_discount_percentage", Reason: ReasonInvalidDiscount, Detail: raw}
	}
	*p = Percent(f)
	return nil
}

// JSONSchema describes the accepted encodings of a percentage
func (Percent) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "number", Minimum: json.Number("0"), Maximum: json.Number("100")},
			{Type: "string", Pattern: `^\s*[0-9]+(\.[0-9]+)?\s*%?\s*$`},
		},
	}
}

// Fraction converts the percentage to a fraction in (0,1]
func (p Percent) Fraction() float64 {
	return float64(p) / 100
}

// SubscribeRequest is the body of a subscribe call
type SubscribeRequest struct {
	ProductName     string   `json:"product_name" validate:"required"`
	UserIdentifier  string   `json:"user_identifier" validate:"required"`
	Channel         string   `json:"notification_channel" validate:"required,channel"`
	DesiredDiscount *Percent `json:"desired_discount_percentage" validate:"required,gt=0,lte=100"`
}

// SubscribeInput is a validated, normalized SubscribeRequest
type SubscribeInput struct {
	ProductName             string
	UserIdentifier          string
	Channel                 types.Channel
	DesiredDiscountFraction float64
}

// Validate checks the request and returns its normalized form. Failures are
// returned as *FieldError.
func (r SubscribeRequest) Validate() (SubscribeInput, error) {
	r.ProductName = strings.TrimSpace(r.ProductName)
	r.UserIdentifier = strings.TrimSpace(r.UserIdentifier)
	r.Channel = strings.TrimSpace(r.Channel)

	if err := Validator().Struct(r); err != nil {
		return SubscribeInput{}, translate(err, r.UserIdentifier)
	}

	channel, _ := types.ParseChannel(r.Channel)
	identifier := r.UserIdentifier
	if channel == types.ChannelWhatsApp {
		identifier = ValidatePhone(identifier).Cleaned
	}
	return SubscribeInput{
		ProductName:             r.ProductName,
		UserIdentifier:          identifier,
		Channel:                 channel,
		DesiredDiscountFraction: r.DesiredDiscount.Fraction(),
	}, nil
}

func subscribeStructLevel(sl validator.StructLevel) {
	r := sl.Current().Interface().(SubscribeRequest)
	if r.UserIdentifier == "" {
		return
	}
	channel, ok := types.ParseChannel(r.Channel)
	if !ok {
		return
	}
	reportIdentifier(sl, channel, r.UserIdentifier, "UserIdentifier", "user_identifier")
}

// SearchRequest holds the query parameters of a streaming search
type SearchRequest struct {
	Product string `form:"product" json:"product" validate:"required"`
	Notify  bool   `form:"notify" json:"notify"`
	Target  string `form:"target" json:"target"`
	Channel string `form:"channel" json:"channel" validate:"omitempty,channel"`
}

// SearchInput is a validated SearchRequest. Notify is only set when a target
// was given.
type SearchInput struct {
	Product string
	Notify  bool
	Target  string
	Channel types.Channel
}

// Validate checks the request and returns its normalized form
func (r SearchRequest) Validate() (SearchInput, error) {
	r.Product = strings.TrimSpace(r.Product)
	r.Target = strings.TrimSpace(r.Target)
	r.Channel = strings.TrimSpace(r.Channel)

	if err := Validator().Struct(r); err != nil {
		return SearchInput{}, translate(err, r.Target)
	}

	in := SearchInput{Product: r.Product, Channel: searchChannel(r.Channel)}
	if r.Notify && r.Target != "" {
		in.Notify = true
		in.Target = r.Target
		if in.Channel == types.ChannelWhatsApp {
			in.Target = ValidatePhone(r.Target).Cleaned
		}
	}
	return in, nil
}

func searchChannel(s string) types.Channel {
	if c, ok := types.ParseChannel(s); ok {
		return c
	}
	return types.ChannelWhatsApp
}

func searchStructLevel(sl validator.StructLevel) {
	r := sl.Current().Interface().(SearchRequest)
	if !r.Notify || r.Target == "" {
		return
	}
	if r.Channel != "" {
		if _, ok := types.ParseChannel(r.Channel); !ok {
			return
		}
	}
	reportIdentifier(sl, searchChannel(r.Channel), r.Target, "Target", "target")
}

func reportIdentifier(sl validator.StructLevel, channel types.Channel, value, field, name string) {
	switch channel {
	case types.ChannelWhatsApp:
		if !ValidatePhone(value).Valid {
			sl.ReportError(value, name, field, "whatsapp_phone", "")
		}
	case types.ChannelTelegram:
		if !ValidChatID(value) {
			sl.ReportError(value, name, field, "telegram_chat_id", "")
		}
	}
}

// translate maps validator errors to the first FieldError by priority:
// missing fields, channel, identifier, discount range.
func translate(err error, identifier string) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	var missing []string
	var channel, ident, discount *FieldError
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			missing = append(missing, fe.Field())
		case "channel":
			channel = &FieldError{Field: fe.Field(), Reason: ReasonInvalidChannel, Detail: fmt.Sprint(fe.Value())}
		case "whatsapp_phone":
			ident = &FieldError{Field: fe.Field(), Reason: ReasonInvalidPhone, Detail: ValidatePhone(identifier).Message}
		case "telegram_chat_id":
			ident = &FieldError{Field: fe.Field(), Reason: ReasonInvalidChatID}
		case "gt", "lte":
			discount = &FieldError{Field: fe.Field(), Reason: ReasonDiscountRange}
		default:
			if discount == nil && ident == nil && channel == nil {
				channel = &FieldError{Field: fe.Field(), Reason: fmt.Sprintf("Invalid %s", fe.Field())}
			}
		}
	}

	switch {
	case len(missing) > 0:
		return &FieldError{Field: strings.Join(missing, ","), Reason: ReasonMissingFields, Detail: strings.Join(missing, ", ")}
	case channel != nil:
		return channel
	case ident != nil:
		return ident
	case discount != nil:
		return discount
	}
	return fmt.Errorf("validate request: %w", err)
}

// DecodeSubscribe decodes a JSON subscribe body. Decoding errors raised by
// Percent are returned as *FieldError.
func DecodeSubscribe(data []byte) (SubscribeRequest, error) {
	var req SubscribeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		var fe *FieldError
		if errors.As(err, &fe) {
			return req, fe
		}
		return req, fmt.Errorf("decode subscribe request: %w", err)
	}
	return req, nil
}
