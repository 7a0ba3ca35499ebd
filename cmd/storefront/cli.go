package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/internal/app"
	"github.com/unkn0wn-root/querycache/internal/config"
	"github.com/unkn0wn-root/querycache/storefront"
)

type cli struct {
	sf      *storefront.Storefront
	failing *storefront.Storefront
	out     io.Writer
}

func newCLI(a *app.App, cfg *config.Config, out io.Writer) *cli {
	c := &cli{sf: a.Storefront, out: out}
	// same store, a client that asks the backend to fail writes
	c.failing, _ = storefront.New(storefront.Options{
		Store: a.Store,
		API: storefront.NewClient(cfg.Storefront.BaseURL,
			storefront.WithTimeout(cfg.Storefront.Timeout),
			storefront.WithSimulatedFailures(),
			storefront.WithClientLogger(a.Log),
		),
		Logger: a.Log,
	})
	return c
}

var errUsage = errors.New("usage")

func (c *cli) usage() {
	fmt.Fprint(c.out, `commands:
  books [-q text] [-author name] [-pages n]
  book <id>
  fav [-fail] <id>
  cart
  add <id> [qty]
  clear [-fail]
  discount <code>
  inventory [-q text] [-author name] [-pages n]
  repl
`)
}

func (c *cli) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	var err error
	switch cmd, rest := args[0], args[1:]; cmd {
	case "books":
		err = c.books(ctx, rest, false)
	case "inventory":
		err = c.books(ctx, rest, true)
	case "book":
		err = c.book(ctx, rest)
	case "fav":
		err = c.fav(ctx, rest)
	case "cart":
		err = c.cart(ctx)
	case "add":
		err = c.add(ctx, rest)
	case "clear":
		err = c.clear(ctx, rest)
	case "discount":
		err = c.discount(ctx, rest)
	case "help":
		c.usage()
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if errors.Is(err, errUsage) {
		c.usage()
	}
	return err
}

func (c *cli) repl(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(c.out, "> ")
	for sc.Scan() {
		args := strings.Fields(sc.Text())
		if len(args) == 1 && (args[0] == "quit" || args[0] == "exit") {
			return nil
		}
		if err := c.exec(ctx, args); err != nil {
			fmt.Fprintln(c.out, "error:", storefront.ParseAPIError(err))
		}
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(c.out, "> ")
	}
	return sc.Err()
}

func listFlags(name string, args []string) (storefront.ListParams, int, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var p storefront.ListParams
	fs.StringVar(&p.Q, "q", "", "search title or author")
	fs.StringVar(&p.Author, "author", "", "filter by author")
	pages := fs.Int("pages", 1, "pages to load")
	if err := fs.Parse(args); err != nil {
		return p, 0, errUsage
	}
	return p, max(*pages, 1), nil
}

func (c *cli) books(ctx context.Context, args []string, inventory bool) error {
	p, pages, err := listFlags("books", args)
	if err != nil {
		return err
	}
	pager := c.sf.Books(p)
	defer pager.Close()

	if _, err := pager.Load(ctx, false); err != nil {
		return err
	}
	for i := 1; i < pages && pager.HasMore(); i++ {
		if _, err := pager.FetchNextPage(ctx); err != nil {
			return err
		}
	}
	data, _ := pager.Data()

	if inventory {
		total, n := storefront.InventoryValue(data)
		fmt.Fprintf(c.out, "Inventory value (loaded): %s (%d books)\n", storefront.FormatPrice(total), n)
		return nil
	}
	for _, b := range data.Items() {
		fmt.Fprintf(c.out, "%s %-4s %-40s %-24s %8s  %d in stock\n",
			storefront.FavoriteMark(b.Favorite), b.ID, b.Title, b.Author, storefront.FormatPrice(b.Price), b.Stock)
	}
	more := ""
	if pager.HasMore() {
		more = ", more available"
	}
	fmt.Fprintf(c.out, "%d books in %d pages%s\n", len(data.Items()), len(data.Pages), more)
	return nil
}

func (c *cli) book(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	d, err := c.sf.BookDetail(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s %s\nby %s\n%s · %d in stock\n%s\n",
		storefront.FavoriteMark(d.Favorite), d.Title, d.Author, storefront.FormatPrice(d.Price), d.Stock, d.Description)
	for _, r := range d.Reviews {
		fmt.Fprintf(c.out, "  %d/5 %s: %s\n", r.Rating, r.Author, r.Text)
	}
	return nil
}

func (c *cli) fav(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("fav", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fail := fs.Bool("fail", false, "ask the backend to fail")
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		return errUsage
	}
	sf := c.sf
	if *fail {
		sf = c.failing
	}
	fav, err := sf.ToggleFavorite(ctx, fs.Arg(0))
	if err != nil {
		var me *querycache.MutationError
		if errors.As(err, &me) {
			fmt.Fprintf(c.out, "rolled back %d cached entries\n", me.RolledBack)
		}
		return err
	}
	fmt.Fprintf(c.out, "%s %s\n", storefront.FavoriteMark(fav), storefront.FavoriteLabel(fav))
	return nil
}

func (c *cli) printCart(cart storefront.Cart, d *storefront.DiscountResult) {
	fmt.Fprintf(c.out, "%d items · %s\n", cart.TotalItems, storefront.FormatPrice(cart.TotalPrice))
	if len(cart.Items) == 0 {
		fmt.Fprintln(c.out, "Cart is empty.")
		return
	}
	for _, it := range cart.Items {
		fmt.Fprintf(c.out, "  %s × %d\n", it.Title, it.Quantity)
	}
	total := storefront.ApplyDiscount(cart.TotalPrice, d)
	note := ""
	if d != nil && d.Valid && total != cart.TotalPrice {
		note = " (" + d.Message + ")"
	}
	fmt.Fprintf(c.out, "Total: %s%s\n", storefront.FormatPrice(total), note)
}

func (c *cli) cart(ctx context.Context) error {
	cart, err := c.sf.Cart(ctx)
	if err != nil {
		return err
	}
	c.printCart(cart, nil)
	return nil
}

func (c *cli) add(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	qty := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return errUsage
		}
		qty = n
	}
	if cart, ok := c.sf.CachedCart(); ok {
		if d, err := c.sf.BookDetail(ctx, args[0]); err == nil && !storefront.CanAddToCart(cart, d.Book) {
			return fmt.Errorf("only %d in stock", d.Stock)
		}
	}
	cart, err := c.sf.AddToCart(ctx, args[0], qty)
	if err != nil {
		return err
	}
	c.printCart(cart, nil)
	return nil
}

func (c *cli) clear(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fail := fs.Bool("fail", false, "ask the backend to fail")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	sf := c.sf
	if *fail {
		sf = c.failing
	}
	cart, err := sf.ClearCart(ctx)
	if err != nil {
		if restored, ok := c.sf.CachedCart(); ok {
			fmt.Fprintln(c.out, "clear failed; cart restored:")
			c.printCart(restored, nil)
		}
		return err
	}
	c.printCart(cart, nil)
	return nil
}

func (c *cli) discount(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	d, err := c.sf.Discount(ctx, args[0])
	if err != nil {
		return err
	}
	if d == nil {
		fmt.Fprintln(c.out, "add something to the cart and enter a code first")
		return nil
	}
	fmt.Fprintln(c.out, d.Message)
	cart, _ := c.sf.CachedCart()
	c.printCart(cart, d)
	return nil
}
