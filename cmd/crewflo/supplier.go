package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crewflo/crewflo/internal/schema"
	"github.com/crewflo/crewflo/internal/ui"
)

var supplierCmd = &cobra.Command{
	Use:     "supplier",
	Aliases: []string{"suppliers"},
	GroupID: "data",
	Short:   "Manage suppliers and subcontractors",
}

var supplierListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suppliers",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)
		defer s.close()

		suppliers := s.ws.Suppliers.Read()
		if len(suppliers) == 0 {
			fmt.Printf("No suppliers yet. Add one with 'crewflo supplier add <name>'\n")
			return
		}
		fmt.Println(ui.SupplierTable(suppliers))
	},
}

var supplierAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a supplier",
	Long: `Add a supplier. A calendar color is picked from the palette unless
--color is given. --email takes one or more comma-separated addresses.

Known trades: ` + strings.Join(schema.Trades, ", "),
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		trade, _ := cmd.Flags().GetString("trade")
		color, _ := cmd.Flags().GetString("color")
		email, _ := cmd.Flags().GetString("email")

		if err := checkColor(color); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if trade != "" && !schema.KnownTrade(trade) {
			fmt.Fprintf(os.Stderr, "%s %q is not a known trade\n", ui.RenderWarn("⚠"), trade)
		}

		s := mustOpenSession(false)
		sup, err := s.ws.AddSupplier(schema.Supplier{Name: args[0], Trade: trade, Color: color, Email: email})
		if err != nil {
			s.fail("%v", err)
		}
		s.close()

		fmt.Printf("%s Added supplier %s (%s)\n", ui.RenderPass("✓"), ui.RenderSupplier(sup.Name, sup.Color), ui.RenderMuted(sup.ID))
	},
}

var supplierUpdateCmd = &cobra.Command{
	Use:   "update <id|name>",
	Short: "Change a supplier",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)

		found, err := findSupplier(s.ws.Suppliers.Read(), args[0])
		if err != nil {
			s.fail("%v", err)
		}
		sup := *found

		if cmd.Flags().Changed("name") {
			sup.Name, _ = cmd.Flags().GetString("name")
		}
		if cmd.Flags().Changed("trade") {
			sup.Trade, _ = cmd.Flags().GetString("trade")
		}
		if cmd.Flags().Changed("email") {
			sup.Email, _ = cmd.Flags().GetString("email")
		}
		if cmd.Flags().Changed("color") {
			sup.Color, _ = cmd.Flags().GetString("color")
			if err := checkColor(sup.Color); err != nil {
				s.fail("%v", err)
			}
		}

		if err := s.ws.UpdateSupplier(sup); err != nil {
			s.fail("%v", err)
		}
		s.close()

		fmt.Printf("%s Updated supplier %s\n", ui.RenderPass("✓"), ui.RenderSupplier(sup.Name, sup.Color))
	},
}

var supplierDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete a supplier",
	Long: `Delete a supplier. Tasks assigned to it are kept and show an unknown
supplier until they are reassigned or deleted.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := mustOpenSession(false)

		sup, err := findSupplier(s.ws.Suppliers.Read(), args[0])
		if err != nil {
			s.fail("%v", err)
		}
		if !confirm(fmt.Sprintf("Delete supplier %q?", sup.Name)) {
			s.close()
			fmt.Println("Cancelled")
			return
		}
		name := sup.Name
		if err := s.ws.DeleteSupplier(sup.ID); err != nil {
			s.fail("%v", err)
		}
		s.close()

		fmt.Printf("%s Deleted supplier %s\n", ui.RenderPass("✓"), name)
	},
}

// checkColor accepts "" (pick automatically) or a palette name.
func checkColor(color string) error {
	if color == "" {
		return nil
	}
	for _, c := range schema.Colors {
		if c == color {
			return nil
		}
	}
	return fmt.Errorf("unknown color %q (want one of %s)", color, strings.Join(schema.Colors, ", "))
}

func init() {
	for _, c := range []*cobra.Command{supplierAddCmd, supplierUpdateCmd} {
		c.Flags().String("trade", "", "Trade, e.g. Plombier")
		c.Flags().String("color", "", "Calendar color tag")
		c.Flags().String("email", "", "Comma-separated email addresses")
	}
	supplierUpdateCmd.Flags().String("name", "", "New name")

	supplierCmd.AddCommand(supplierListCmd, supplierAddCmd, supplierUpdateCmd, supplierDeleteCmd)
	rootCmd.AddCommand(supplierCmd)
}
