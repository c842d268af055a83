// storefront is a terminal client for the storefront service.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	storefront products
//	storefront search -text TEXT
//	storefront browse                      (debounced search over stdin lines)
//	storefront cart
//	storefront add -product ID [-qty N] [-force]
//	storefront qty -product ID -qty N
//	storefront inc -product ID
//	storefront dec -product ID
//	storefront summary
//	storefront login -token TOKEN -user NAME
//	storefront logout
//
// Examples:
//
//	storefront login -token "$TOKEN" -user crio.do
//	storefront add -product KCRwjF7lN97HnEaY
//	printf 'so\nsof\nsofa\n' | storefront browse
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"storefront/internal/cartsync"
	"storefront/internal/config"
	"storefront/internal/model"
	"storefront/internal/notice"
	"storefront/internal/reconcile"
	"storefront/internal/remote"
	"storefront/internal/search"
	"storefront/internal/session"
	"storefront/internal/storefront"
	"storefront/internal/transport"
)

// Global flags (apply to all commands)
var (
	noColor bool
	verbose bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

func init() {
	if os.Getenv("NO_COLOR") != "" {
		disableColors()
	}
}

func disableColors() {
	colorReset, colorRed, colorGreen, colorYellow = "", "", "", ""
	colorCyan, colorGray, colorBold = "", "", ""
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "products":
		runProducts(args)
	case "search":
		runSearch(args)
	case "browse":
		runBrowse(args)
	case "cart":
		runCart(args)
	case "add":
		runAdd(args)
	case "qty":
		runQuantity(args)
	case "inc", "dec":
		runStep(cmd, args)
	case "summary":
		runSummary(args)
	case "login":
		runLogin(args)
	case "logout":
		runLogout(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `storefront - storefront terminal client

Usage:
  storefront <command> [options]

Commands:
  products  List the catalog
  search    Search products once
  browse    Search as you type: one line of stdin per keystroke burst
  cart      Show the cart
  add       Add a product to the cart
  qty       Set a product's quantity (0 removes it)
  inc, dec  Change a product's quantity by one
  summary   Show the order details
  login     Store a session token
  logout    Forget the stored session

Configuration is read from storefront.yaml, .env and STOREFRONT_* variables.

Run 'storefront <command> -h' for command-specific options.
`)
}

// =============================================================================
// SETUP
// =============================================================================

// app bundles what every command needs.
type app struct {
	cfg     *config.Config
	sf      *storefront.Storefront
	session model.Session
	failed  atomic.Bool
}

// newFlagSet creates a flag set carrying the global flags.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - log requests at debug level")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: storefront %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

// setup loads configuration and the stored session and builds the client.
func setup() *app {
	if noColor {
		disableColors()
	}

	cfg, err := config.Load(context.Background())
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	logger := initLogger(cfg)

	api, err := remote.New(remote.Config{
		BaseURL:     cfg.API.BaseURL,
		Timeout:     cfg.API.Timeout,
		Fingerprint: transport.Fingerprint(cfg.API.Fingerprint),
		Breaker: remote.BreakerConfig{
			ConsecutiveFailures: cfg.API.Breaker.Failures,
			OpenTimeout:         cfg.API.Breaker.OpenTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		fatal("Failed to create client: %v", err)
	}

	a := &app{cfg: cfg}
	a.session = cfg.Credentials
	if !a.session.Authenticated() {
		if a.session, err = session.Load(cfg.Session.File); err != nil {
			printWarning("Ignoring session file: %v", err)
		}
	}

	a.sf = storefront.New(api, storefront.Config{
		SearchDelay:   cfg.Search.Debounce,
		SequenceGuard: cfg.Search.SequenceGuard,
		Notices:       notice.SinkFunc(a.notify),
		Logger:        logger,
	})
	return a
}

// notify prints a notice as it is raised.
func (a *app) notify(_ context.Context, n notice.Notice) {
	switch n.Severity {
	case notice.SeverityWarning:
		printWarning("%s", n.Message)
	default:
		a.failed.Store(true)
		printError("%s", n.Message)
	}
}

// load fetches catalog and cart, exiting when either failed.
func (a *app) load(ctx context.Context) {
	if err := a.sf.Load(ctx, a.session); err != nil {
		os.Exit(1)
	}
}

func (a *app) close() {
	a.sf.Close()
	if a.failed.Load() {
		os.Exit(1)
	}
}

// initLogger logs to stderr so command output stays clean.
func initLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	} else if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil || level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// =============================================================================
// CATALOG COMMANDS
// =============================================================================

func runProducts(args []string) {
	fs := newFlagSet("products", "products [options]")
	fs.Parse(args)

	a := setup()
	defer a.close()

	if err := a.sf.RefreshCatalog(context.Background()); err != nil {
		return
	}
	printProducts(a.sf.Catalog())
}

func runSearch(args []string) {
	fs := newFlagSet("search", "search -text TEXT [options]")
	var text string
	fs.StringVar(&text, "text", "", "Search text (required)")
	fs.Parse(args)

	if text == "" && fs.NArg() > 0 {
		text = strings.Join(fs.Args(), " ")
	}
	if text == "" {
		fs.Usage()
		os.Exit(1)
	}

	a := setup()
	defer a.close()

	a.sf.SearchNow(context.Background(), text)
	printProducts(a.sf.Catalog())
}

func runBrowse(args []string) {
	fs := newFlagSet("browse", "browse [options] < queries")
	fs.Parse(args)

	a := setup()
	defer a.close()

	ctx := context.Background()
	a.load(ctx)
	printProducts(a.sf.Catalog())

	views := make(chan storefront.View, 16)
	unsubscribe := a.sf.Subscribe(func(v storefront.View) {
		select {
		case views <- v:
		default:
		}
	})
	defer unsubscribe()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var last *search.Handle
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// Flush a search still waiting out its debounce window.
				if last != nil && last.Pending() {
					a.sf.SearchNow(ctx, last.Text())
					printProducts(a.sf.Catalog())
				}
				return
			}
			h := a.sf.Search(line)
			last = &h
			printInfo("searching %q", h.Text())
		case v := <-views:
			printInfo("%d products", len(v.Catalog))
			printProducts(v.Catalog)
		}
	}
}

// =============================================================================
// CART COMMANDS
// =============================================================================

func runCart(args []string) {
	fs := newFlagSet("cart", "cart [options]")
	fs.Parse(args)

	a := setup()
	defer a.close()

	a.load(context.Background())
	printCart(a.sf.Cart())
}

func runAdd(args []string) {
	fs := newFlagSet("add", "add -product ID [-qty N] [options]")
	var productID string
	var qty int
	var force bool
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.IntVar(&qty, "qty", 1, "Quantity")
	fs.BoolVar(&force, "force", false, "Set the quantity even if the product is already in the cart")
	fs.Parse(args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	a := setup()
	defer a.close()

	ctx := context.Background()
	a.load(ctx)
	cart, err := a.sf.AddToCart(ctx, a.session, productID, qty, cartsync.AddOptions{PreventDuplicate: !force})
	if err != nil {
		return
	}
	printSuccess("Added %s", productID)
	printCart(cart)
}

func runQuantity(args []string) {
	fs := newFlagSet("qty", "qty -product ID -qty N [options]")
	var productID string
	var qty int
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.IntVar(&qty, "qty", -1, "New quantity, 0 removes the product (required)")
	fs.Parse(args)

	if productID == "" || qty < 0 {
		fs.Usage()
		os.Exit(1)
	}

	a := setup()
	defer a.close()

	ctx := context.Background()
	a.load(ctx)
	cart, err := a.sf.SetQuantity(ctx, a.session, productID, qty)
	if err != nil {
		return
	}
	printCart(cart)
}

func runStep(cmd string, args []string) {
	fs := newFlagSet(cmd, cmd+" -product ID [options]")
	var productID string
	fs.StringVar(&productID, "product", "", "Product ID (required)")
	fs.Parse(args)

	if productID == "" {
		fs.Usage()
		os.Exit(1)
	}

	a := setup()
	defer a.close()

	ctx := context.Background()
	a.load(ctx)

	step := a.sf.Increment
	if cmd == "dec" {
		step = a.sf.Decrement
	}
	cart, err := step(ctx, a.session, productID)
	if err != nil {
		return
	}
	printCart(cart)
}

func runSummary(args []string) {
	fs := newFlagSet("summary", "summary [options]")
	fs.Parse(args)

	a := setup()
	defer a.close()

	a.load(context.Background())
	printSummary(a.sf.Summary())
}

// =============================================================================
// SESSION COMMANDS
// =============================================================================

func runLogin(args []string) {
	fs := newFlagSet("login", "login -token TOKEN -user NAME [options]")
	var s model.Session
	fs.StringVar(&s.Token, "token", "", "Bearer token (required)")
	fs.StringVar(&s.Username, "user", "", "Username")
	fs.Parse(args)

	if s.Token == "" {
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(context.Background())
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	if err := session.Save(cfg.Session.File, s); err != nil {
		fatal("Failed to save session: %v", err)
	}
	printSuccess("Logged in as %s", displayName(s))
}

func runLogout(args []string) {
	fs := newFlagSet("logout", "logout [options]")
	fs.Parse(args)

	cfg, err := config.Load(context.Background())
	if err != nil {
		fatal("Failed to load config: %v", err)
	}
	if err := session.Clear(cfg.Session.File); err != nil {
		fatal("Failed to clear session: %v", err)
	}
	printSuccess("Logged out")
}

func displayName(s model.Session) string {
	if s.Username == "" {
		return "(unnamed)"
	}
	return s.Username
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printProducts(products []model.Product) {
	if len(products) == 0 {
		fmt.Printf("%sNo products found%s\n", colorGray, colorReset)
		return
	}
	for _, p := range products {
		fmt.Printf("  %s%-18s%s %-28s %-14s %8s  %s\n",
			colorCyan, p.ID, colorReset, p.Name, p.Category, model.FormatCost(p.Cost), stars(p.Rating))
	}
}

func printCart(cart cartsync.Cart) {
	if len(cart.Items) == 0 {
		fmt.Printf("%sCart is empty. Add items to the cart to checkout.%s\n", colorGray, colorReset)
		return
	}
	for _, item := range cart.Items {
		fmt.Printf("  %-28s %3d × %-8s %s%8s%s\n",
			item.Name, item.Quantity, model.FormatCost(item.Cost), colorBold, model.FormatCost(item.LineTotal()), colorReset)
	}
	fmt.Printf("  %sTotal%s %s\n", colorBold, colorReset, model.FormatCost(cart.Total()))
}

func printSummary(s reconcile.OrderSummary) {
	fmt.Printf("%sOrder Details%s\n", colorBold, colorReset)
	fmt.Printf("  Products         %d\n", s.Products)
	fmt.Printf("  Subtotal         %s\n", model.FormatCost(s.Subtotal))
	fmt.Printf("  Shipping Charges %s\n", model.FormatCost(s.Shipping))
	fmt.Printf("  %sTotal            %s%s\n", colorBold, model.FormatCost(s.Total), colorReset)
}

func stars(rating int) string {
	rating = max(0, min(rating, 5))
	return strings.Repeat("★", rating) + strings.Repeat("☆", 5-rating)
}

func printSuccess(format string, args ...any) {
	fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
}

func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func printWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s⚠ %s%s\n", colorYellow, fmt.Sprintf(format, args...), colorReset)
}

func printInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s→ %s%s\n", colorGray, fmt.Sprintf(format, args...), colorReset)
}

func fatal(format string, args ...any) {
	printError(format, args...)
	os.Exit(1)
}
