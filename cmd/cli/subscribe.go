package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kosarica/deal-service/internal/validation"
)

var (
	subscribeUser     string
	subscribeChannel  string
	subscribeDiscount string
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe <product>",
	Short: "Subscribe a user to price drops of a product",
	Example: `  deal-service subscribe "gaming laptop" --user +385911234567 --discount 20
  deal-service subscribe monitor --user 123456789 --channel telegram --discount 15%`,
	Args: cobra.ExactArgs(1),
	RunE: runSubscribe,
}

var listSubscriptionsCmd = &cobra.Command{
	Use:   "subscriptions",
	Short: "List all subscriptions",
	RunE:  runListSubscriptions,
}

func init() {
	rootCmd.AddCommand(subscribeCmd)
	rootCmd.AddCommand(listSubscriptionsCmd)
	subscribeCmd.Flags().StringVarP(&subscribeUser, "user", "u", "", "Phone number (whatsapp) or chat id (telegram)")
	subscribeCmd.Flags().StringVarP(&subscribeChannel, "channel", "c", "whatsapp", "Notification channel (whatsapp, telegram)")
	subscribeCmd.Flags().StringVarP(&subscribeDiscount, "discount", "d", "", "Desired discount percentage, e.g. 20 or 20%")
	_ = subscribeCmd.MarkFlagRequired("user")
	_ = subscribeCmd.MarkFlagRequired("discount")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]string{
		"product_name":                args[0],
		"user_identifier":             subscribeUser,
		"notification_channel":        subscribeChannel,
		"desired_discount_percentage": subscribeDiscount,
	})
	if err != nil {
		return err
	}
	req, err := validation.DecodeSubscribe(body)
	if err != nil {
		return err
	}

	engine, cleanup, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := engine.Subscribe(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Println(res.Message)
	return nil
}

func runListSubscriptions(cmd *cobra.Command, args []string) error {
	engine, cleanup, err := newEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	subs, err := engine.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		fmt.Println("No subscriptions")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PRODUCT\tUSER\tCHANNEL\tDISCOUNT\tTRACKED\tUPDATED")
	fmt.Fprintln(w, "-------\t----\t-------\t--------\t-------\t-------")
	for _, s := range subs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f%%\t%d\t%s\n",
			s.ProductName, s.UserIdentifier, s.Channel, s.DesiredDiscountFraction*100,
			len(s.LastKnownPrices), s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
