package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosarica/deal-service/internal/types"
)

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		valid   bool
		cleaned string
		message string
	}{
		{"valid", "+51987654321", true, "+51987654321", ""},
		{"spaces and dashes", "+51 987-654-321", true, "+51987654321", ""},
		{"empty", "  ", false, "", msgPhoneRequired},
		{"no prefix", "51987654321", false, "51987654321", msgPhoneNoPrefix},
		{"too short", "+5198", false, "+5198", msgPhoneTooShort},
		{"letters", "+51987abc321", false, "+51987abc321", msgPhoneNotNumeric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidatePhone(tt.input)
			assert.Equal(t, tt.valid, got.Valid)
			assert.Equal(t, tt.cleaned, got.Cleaned)
			assert.Equal(t, tt.message, got.Message)
		})
	}
}

func TestValidChatID(t *testing.T) {
	assert.True(t, ValidChatID("123456789"))
	assert.False(t, ValidChatID("abc_not_digits"))
	assert.False(t, ValidChatID(""))
	assert.False(t, ValidChatID("١٢٣"))
}

func percent(f float64) *Percent {
	p := Percent(f)
	return &p
}

func TestSubscribeRequestValidate(t *testing.T) {
	t.Run("whatsapp", func(t *testing.T) {
		in, err := SubscribeRequest{
			ProductName:     " Laptop Test ",
			UserIdentifier:  "+51 999-999-999",
			Channel:         "WhatsApp",
			DesiredDiscount: percent(10),
		}.Validate()
		require.NoError(t, err)
		assert.Equal(t, "Laptop Test", in.ProductName)
		assert.Equal(t, "+51999999999", in.UserIdentifier)
		assert.Equal(t, types.ChannelWhatsApp, in.Channel)
		assert.InDelta(t, 0.10, in.DesiredDiscountFraction, 1e-9)
	})

	t.Run("telegram", func(t *testing.T) {
		in, err := SubscribeRequest{
			ProductName:     "Tablet Pro",
			UserIdentifier:  "123456789",
			Channel:         "telegram",
			DesiredDiscount: percent(100),
		}.Validate()
		require.NoError(t, err)
		assert.Equal(t, types.ChannelTelegram, in.Channel)
		assert.InDelta(t, 1.0, in.DesiredDiscountFraction, 1e-9)
	})

	failures := []struct {
		name   string
		req    SubscribeRequest
		reason string
	}{
		{"missing fields", SubscribeRequest{ProductName: "Laptop"}, ReasonMissingFields},
		{"invalid phone", SubscribeRequest{ProductName: "Laptop", UserIdentifier: "123", Channel: "whatsapp", DesiredDiscount: percent(10)}, ReasonInvalidPhone},
		{"invalid chat id", SubscribeRequest{ProductName: "Laptop", UserIdentifier: "abc_not_digits", Channel: "telegram", DesiredDiscount: percent(10)}, ReasonInvalidChatID},
		{"discount too high", SubscribeRequest{ProductName: "Laptop", UserIdentifier: "+51987654321", Channel: "whatsapp", DesiredDiscount: percent(150)}, ReasonDiscountRange},
		{"discount zero", SubscribeRequest{ProductName: "Laptop", UserIdentifier: "+51987654321", Channel: "whatsapp", DesiredDiscount: percent(0)}, ReasonDiscountRange},
		{"invalid channel", SubscribeRequest{ProductName: "Laptop", UserIdentifier: "12345", Channel: "email", DesiredDiscount: percent(10)}, ReasonInvalidChannel},
		{"blank product", SubscribeRequest{ProductName: "  ", UserIdentifier: "12345", Channel: "telegram", DesiredDiscount: percent(10)}, ReasonMissingFields},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.req.Validate()
			require.Error(t, err)
			var fe *FieldError
			require.True(t, errors.As(err, &fe), "expected FieldError, got %T", err)
			assert.Equal(t, tt.reason, fe.Reason)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestMissingFieldsListsAll(t *testing.T) {
	_, err := SubscribeRequest{ProductName: "Laptop"}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_identifier")
	assert.Contains(t, err.Error(), "notification_channel")
	assert.Contains(t, err.Error(), "desired_discount_percentage")
}

func TestDecodeSubscribe(t *testing.T) {
	t.Run("string percentage", func(t *testing.T) {
		req, err := DecodeSubscribe([]byte(`{"product_name":"Laptop","user_identifier":"123","notification_channel":"telegram","desired_discount_percentage":"25"}`))
		require.NoError(t, err)
		require.NotNil(t, req.DesiredDiscount)
		assert.InDelta(t, 25.0, float64(*req.DesiredDiscount), 1e-9)
	})

	t.Run("numeric percentage", func(t *testing.T) {
		req, err := DecodeSubscribe([]byte(`{"desired_discount_percentage":12.5}`))
		require.NoError(t, err)
		assert.InDelta(t, 0.125, req.DesiredDiscount.Fraction(), 1e-9)
	})

	t.Run("percent sign", func(t *testing.T) {
		req, err := DecodeSubscribe([]byte(`{"desired_discount_percentage":"30%"}`))
		require.NoError(t, err)
		assert.InDelta(t, 30.0, float64(*req.DesiredDiscount), 1e-9)
	})

	t.Run("null leaves it missing", func(t *testing.T) {
		req, err := DecodeSubscribe([]byte(`{"desired_discount_percentage":null}`))
		require.NoError(t, err)
		assert.Nil(t, req.DesiredDiscount)
	})

	t.Run("not a number", func(t *testing.T) {
		_, err := DecodeSubscribe([]byte(`{"desired_discount_percentage":"ten"}`))
		require.Error(t, err)
		assert.True(t, IsFieldError(err))
		assert.Contains(t, err.Error(), ReasonInvalidDiscount)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := DecodeSubscribe([]byte(`{`))
		require.Error(t, err)
		assert.False(t, IsFieldError(err))
	})
}

func TestSearchRequestValidate(t *testing.T) {
	t.Run("plain search", func(t *testing.T) {
		in, err := SearchRequest{Product: " laptop "}.Validate()
		require.NoError(t, err)
		assert.Equal(t, "laptop", in.Product)
		assert.False(t, in.Notify)
	})

	t.Run("notify without target is ignored", func(t *testing.T) {
		in, err := SearchRequest{Product: "laptop", Notify: true}.Validate()
		require.NoError(t, err)
		assert.False(t, in.Notify)
	})

	t.Run("notify with whatsapp target", func(t *testing.T) {
		in, err := SearchRequest{Product: "laptop", Notify: true, Target: "+51 987 654 321"}.Validate()
		require.NoError(t, err)
		assert.True(t, in.Notify)
		assert.Equal(t, "+51987654321", in.Target)
		assert.Equal(t, types.ChannelWhatsApp, in.Channel)
	})

	t.Run("notify with telegram target", func(t *testing.T) {
		in, err := SearchRequest{Product: "laptop", Notify: true, Target: "42", Channel: "telegram"}.Validate()
		require.NoError(t, err)
		assert.Equal(t, types.ChannelTelegram, in.Channel)
		assert.Equal(t, "42", in.Target)
	})

	t.Run("empty product", func(t *testing.T) {
		_, err := SearchRequest{Product: "   "}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), ReasonMissingFields)
	})

	t.Run("invalid phone", func(t *testing.T) {
		_, err := SearchRequest{Product: "laptop", Notify: true, Target: "999"}.Validate()
		require.Error(t, err)
		var fe *FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, ReasonInvalidPhone, fe.Reason)
		assert.Equal(t, msgPhoneNoPrefix, fe.Detail)
	})

	t.Run("invalid channel", func(t *testing.T) {
		_, err := SearchRequest{Product: "laptop", Channel: "email"}.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), ReasonInvalidChannel)
	})
}
