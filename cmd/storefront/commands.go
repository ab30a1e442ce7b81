package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fjod/storefront/internal/api"
	"github.com/fjod/storefront/internal/app"
	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type opener func(ctx context.Context) (*app.App, error)

type cli struct {
	open opener
	app  *app.App
}

// newRootCmd returns the command tree and a func that releases whatever the
// executed command opened.
func newRootCmd(open opener) (*cobra.Command, func(context.Context) error) {
	c := &cli{open: open}

	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Browse instruments, manage your cart and place orders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			c.app = a
			return nil
		},
	}

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.registerCmd(),
		c.whoamiCmd(),
		c.productsCmd(),
		c.cartCmd(),
		c.checkoutCmd(),
		c.ordersCmd(),
		c.usersCmd(),
	)
	return root, c.close
}

func (c *cli) close(ctx context.Context) error {
	if c.app == nil {
		return nil
	}
	defer c.app.Log.Sync()
	err := c.app.Close(ctx)
	c.app = nil
	return err
}

// guarded checks the route table before running a command bound to path.
func (c *cli) guarded(path string, run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := c.app.Routes.Check(path, c.app.Auth.Session()).Err(path); err != nil {
			return userError(err)
		}
		return run(cmd, args)
	}
}

// userError turns kind errors into the message a shopper should see.
func userError(err error) error {
	switch {
	case errors.Is(err, domain.ErrLoginRequired):
		return errors.New("please log in first (storefront login <user>)")
	case errors.Is(err, domain.ErrForbidden):
		return errors.New("your role is not allowed to do that")
	case errors.Is(err, domain.ErrEmptyCart):
		return errors.New("your cart is empty")
	case errors.Is(err, domain.ErrStockLimit):
		return errors.New("no more stock available for this product")
	case errors.Is(err, domain.ErrSelfDelete):
		return errors.New("you cannot delete your own account")
	case domain.IsKind(err, domain.KindNetwork):
		if msg := api.Message(err); msg != "" {
			return fmt.Errorf("the store rejected the request: %s", msg)
		}
		return fmt.Errorf("the store is unreachable right now: %w", err)
	default:
		return err
	}
}

func parseProductID(s string) (domain.ProductID, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid product id %q", s)
	}
	return domain.ProductID(id), nil
}

func parseQuantity(s string) (int, error) {
	q, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	return q, nil
}

func (c *cli) loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Sign in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Auth.Login(cmd.Context(), args[0], password); err != nil {
				return userError(err)
			}
			s := c.app.Auth.Session()
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", s.Identity.DisplayName, s.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out; the cart is kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *cli) registerCmd() *cobra.Command {
	var p auth.Profile
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Auth.Register(cmd.Context(), p); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s created, you can now log in\n", p.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&p.Name, "name", "", "first name")
	cmd.Flags().StringVar(&p.Surname, "surname", "", "last name")
	cmd.Flags().StringVar(&p.Email, "email", "", "email, also the login name")
	cmd.Flags().StringVar(&p.Password, "password", "", "password, at least 4 characters")
	cmd.Flags().StringVar(&p.Role, "role", "", "Admin, Operador or Visor (default Visor)")
	return cmd
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := c.app.Auth.Session()
			if !s.Authenticated() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d, %s)\n", s.Identity.DisplayName, s.Identity.ID, s.Role)
			return nil
		},
	}
}

func (c *cli) productsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "products",
		Short: "List instruments with price and stock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Catalog.Refresh(cmd.Context()); err != nil {
				return userError(err)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBRAND\tPRICE\tSTOCK")
			for _, p := range c.app.Catalog.Products() {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", p.ID, p.Name, p.Brand, p.Price.StringFixed(2), p.Stock)
			}
			return w.Flush()
		},
	}
}

// refreshPrices is best effort: totals fall back to zero for unknown prices.
func (c *cli) refreshPrices(ctx context.Context) {
	if err := c.app.Catalog.Refresh(ctx); err != nil {
		c.app.Log.Warn("prices unavailable, totals may be incomplete", "error", err)
	}
}

func (c *cli) printCart(out io.Writer) error {
	snap := c.app.Cart.Snapshot()
	if snap.IsEmpty() {
		fmt.Fprintln(out, "Your cart is empty")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tQTY\tUNIT\tSUBTOTAL")
	for _, l := range snap.Lines {
		name, unit, subtotal := "?", "?", "?"
		if p, ok := c.app.Catalog.Product(l.ProductRef); ok {
			name = p.Name
			unit = p.Price.StringFixed(2)
			subtotal = p.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).StringFixed(2)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", l.ProductRef, name, l.Quantity, unit, subtotal)
	}
	fmt.Fprintf(w, "\t\t%d items\t\t%s\n", snap.TotalItems, snap.TotalPrice.StringFixed(2))
	return w.Flush()
}

func (c *cli) cartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cart",
		Short: "Show or change the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.refreshPrices(cmd.Context())
			return c.printCart(cmd.OutOrStdout())
		},
	}

	mutate := func(use, short string, args cobra.PositionalArgs, fn func(ctx context.Context, args []string) error) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  args,
			RunE: func(cmd *cobra.Command, args []string) error {
				c.refreshPrices(cmd.Context())
				if err := fn(cmd.Context(), args); err != nil {
					return userError(err)
				}
				return c.printCart(cmd.OutOrStdout())
			},
		}
	}

	cmd.AddCommand(
		mutate("add <product> [qty]", "Add a product", cobra.RangeArgs(1, 2), func(ctx context.Context, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			qty := 1
			if len(args) == 2 {
				if qty, err = parseQuantity(args[1]); err != nil {
					return err
				}
			}
			return c.app.Cart.AddItem(ctx, id, qty)
		}),
		mutate("set <product> <qty>", "Set a line's quantity; 0 removes it", cobra.ExactArgs(2), func(ctx context.Context, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			return c.app.Cart.SetQuantity(ctx, id, qty)
		}),
		mutate("inc <product>", "Add one unit, up to the stock", cobra.ExactArgs(1), func(ctx context.Context, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return c.app.Cart.Increment(ctx, id)
		}),
		mutate("dec <product>", "Remove one unit", cobra.ExactArgs(1), func(ctx context.Context, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return c.app.Cart.Decrement(ctx, id)
		}),
		mutate("rm <product>", "Remove a line", cobra.ExactArgs(1), func(ctx context.Context, args []string) error {
			id, err := parseProductID(args[0])
			if err != nil {
				return err
			}
			return c.app.Cart.RemoveItem(ctx, id)
		}),
		mutate("clear", "Empty the cart", cobra.NoArgs, func(ctx context.Context, _ []string) error {
			return c.app.Cart.Clear(ctx)
		}),
	)
	return cmd
}

func (c *cli) checkoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout",
		Short: "Place an order for the cart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.refreshPrices(cmd.Context())
			result, err := c.app.Checkout.Submit(cmd.Context())
			if err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.ConfirmationMessage)
			return nil
		},
	}
}

func (c *cli) ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List and manage orders",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "mine",
			Short: "List your orders",
			Args:  cobra.NoArgs,
			RunE: c.guarded("/orders/mine", func(cmd *cobra.Command, _ []string) error {
				orders, err := c.app.Orders.Mine(cmd.Context())
				if err != nil {
					return userError(err)
				}
				return printOrders(cmd.OutOrStdout(), orders)
			}),
		},
		&cobra.Command{
			Use:   "all",
			Short: "List every order (admin)",
			Args:  cobra.NoArgs,
			RunE: c.guarded("/admin/orders", func(cmd *cobra.Command, _ []string) error {
				orders, err := c.app.Orders.All(cmd.Context())
				if err != nil {
					return userError(err)
				}
				return printOrders(cmd.OutOrStdout(), orders)
			}),
		},
		&cobra.Command{
			Use:   "status <order> <status>",
			Short: "Change an order's status (admin)",
			Args:  cobra.ExactArgs(2),
			RunE: c.guarded("/admin/orders", func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid order id %q", args[0])
				}
				status, err := domain.ParseOrderStatus(args[1])
				if err != nil {
					return fmt.Errorf("invalid status %q, expected one of %s", args[1], joinStatuses(domain.OrderStatuses()))
				}
				order, err := c.app.Orders.UpdateStatus(cmd.Context(), id, status)
				if err != nil {
					return userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Order #%d is now %s\n", order.ID, order.Status)
				return nil
			}),
		},
	)
	return cmd
}

func (c *cli) usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage accounts (admin)",
	}

	var p auth.Profile
	add := &cobra.Command{
		Use:   "add-operator",
		Short: "Create an Operador account",
		Args:  cobra.NoArgs,
		RunE: c.guarded("/admin/users", func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Users.AddOperator(cmd.Context(), p); err != nil {
				return userError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Operator %s created\n", p.Email)
			return nil
		}),
	}
	add.Flags().StringVar(&p.Name, "name", "", "first name")
	add.Flags().StringVar(&p.Surname, "surname", "", "last name")
	add.Flags().StringVar(&p.Email, "email", "", "email, also the login name")
	add.Flags().StringVar(&p.Password, "password", "", "password, at least 4 characters")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List every account",
			Args:  cobra.NoArgs,
			RunE: c.guarded("/admin/users", func(cmd *cobra.Command, _ []string) error {
				accounts, err := c.app.Users.List(cmd.Context())
				if err != nil {
					return userError(err)
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tEMAIL\tNAME\tROLE")
				for _, a := range accounts {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", a.ID, a.Email, strings.TrimSpace(a.Name+" "+a.Surname), a.Role)
				}
				return w.Flush()
			}),
		},
		add,
		&cobra.Command{
			Use:   "rm <user>",
			Short: "Delete an account",
			Args:  cobra.ExactArgs(1),
			RunE: c.guarded("/admin/users", func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid user id %q", args[0])
				}
				if err := c.app.Users.Remove(cmd.Context(), id); err != nil {
					return userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %d deleted\n", id)
				return nil
			}),
		},
	)
	return cmd
}

func joinStatuses(statuses []domain.OrderStatus) string {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}

func printOrders(out io.Writer, orders []domain.Order) error {
	if len(orders) == 0 {
		fmt.Fprintln(out, "No orders yet")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tDATE\tSTATUS\tLINES\tTOTAL")
	for _, o := range orders {
		date := "-"
		if !o.Date.IsZero() {
			date = o.Date.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", o.ID, date, o.Status, len(o.Lines), o.Total.StringFixed(2))
	}
	return w.Flush()
}
