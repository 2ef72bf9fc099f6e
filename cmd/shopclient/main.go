// shopclient is a CLI tool for driving a shop mini-app session.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	shopclient products [-category NAME]
//	shopclient start | get | end
//	shopclient add -product ID
//	shopclient remove -product ID
//	shopclient open | close | proceed | back | confirm | click
//	shopclient contact -contact TEXT [-comment TEXT]
//
// Examples:
//
//	shopclient add -user 42 -product 1
//	shopclient click -user 42
//	shopclient contact -user 42 -contact @ann
//	shopclient click -user 42
//	STAGE=$(shopclient click -user 42 -q)
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"shop-miniapp/internal/host"
	"shop-miniapp/internal/model"
)

var client = &http.Client{Timeout: 60 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL string
	userID    int64
	userName  string
	version   string
	token     string
	quiet     bool
	noColor   bool
	verbose   bool
)

// ANSI color codes
var (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
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
	colorBlue, colorCyan, colorGray, colorBold = "", "", "", ""
}

// sessionCommands are the commands that act on the session without options.
var sessionCommands = map[string]struct {
	method string
	path   string
	help   string
}{
	"start":   {"POST", "/api/session", "Start a fresh session"},
	"get":     {"GET", "/api/session", "Show the current session"},
	"open":    {"POST", "/api/session/cart/open", "Open the cart"},
	"close":   {"POST", "/api/session/cart/close", "Close the cart"},
	"proceed": {"POST", "/api/session/proceed", "Validate the contact and open payment"},
	"back":    {"POST", "/api/session/back", "Return from payment to the cart"},
	"confirm": {"POST", "/api/session/confirm", "Place the order"},
	"click":   {"POST", "/api/session/main-button/click", "Press the main button"},
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
	case "add":
		runItem("add", "POST", args)
	case "remove":
		runItem("remove", "DELETE", args)
	case "contact":
		runContact(args)
	case "end":
		runEnd(args)
	case "-h", "-help", "--help", "help":
		printUsage()
	default:
		if c, ok := sessionCommands[cmd]; ok {
			fs := newFlagSet(cmd, "")
			fs.Parse(args)
			applyColors()
			resp, err := doRequest(c.method, c.path, nil)
			if err != nil {
				fatal("%s failed: %v", cmd, err)
			}
			printSession(resp)
			return
		}
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `shopclient - shop mini-app session tool

Usage:
  shopclient <command> [options]

Commands:
  products  List catalog products
  add       Add one unit of a product to the cart
  remove    Remove one unit of a product from the cart
  contact   Fill the order form (cart must be open)
  end       End the session
`)
	for _, name := range []string{"start", "get", "open", "close", "proceed", "back", "confirm", "click"} {
		fmt.Fprintf(os.Stderr, "  %-9s %s\n", name, sessionCommands[name].help)
	}
	fmt.Fprintf(os.Stderr, `
Examples:
  # Fill the cart and walk the main button to payment
  shopclient add -user 42 -product 1
  shopclient click -user 42
  shopclient contact -user 42 -contact @ann
  shopclient click -user 42

  # Pay and capture the resulting stage
  STAGE=$(shopclient click -user 42 -q)

Run 'shopclient <command> -h' for command-specific options.
`)
}

// newFlagSet registers the global flags on a command's flag set.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", "http://localhost:8080", "Mini-app server base URL")
	fs.Int64Var(&userID, "user", 0, "Host user ID (0 = guest)")
	fs.StringVar(&userName, "name", "", "Host user display name")
	fs.StringVar(&version, "version", "7.0", "Host platform version")
	fs.StringVar(&token, "session", "", "Guest session token printed by start (guests only)")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the stage")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: shopclient %s %s[options]\n\nOptions:\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func applyColors() {
	if noColor {
		disableColors()
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func runProducts(args []string) {
	fs := newFlagSet("products", "")
	var category string
	fs.StringVar(&category, "category", "", "Category filter (all, bots, crm, other)")
	fs.Parse(args)
	applyColors()

	path := "/api/products"
	if category != "" {
		path += "?category=" + url.QueryEscape(category)
	}

	resp, err := doRequest("GET", path, nil)
	if err != nil {
		fatal("Failed to list products: %v", err)
	}

	products, _ := resp["products"].([]interface{})
	for _, p := range products {
		pm, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		if quiet {
			fmt.Printf("%v\n", pm["id"])
			continue
		}
		fmt.Printf("  %s%3v%s  %v %-22v %s%8v%s  %s%v%s\n",
			colorBold, pm["id"], colorReset,
			pm["icon"], pm["title"],
			colorGreen, pm["price"], colorReset,
			colorGray, pm["category"], colorReset,
		)
	}
}

func runItem(name, method string, args []string) {
	fs := newFlagSet(name, "-product ID ")
	var productID int
	fs.IntVar(&productID, "product", 0, "Product ID (required)")
	fs.Parse(args)
	applyColors()

	if productID <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest(method, fmt.Sprintf("/api/session/items/%d", productID), nil)
	if err != nil {
		fatal("Failed to %s product %d: %v", name, productID, err)
	}
	printSession(resp)
}

func runContact(args []string) {
	fs := newFlagSet("contact", "-contact TEXT ")
	var contact, comment string
	fs.StringVar(&contact, "contact", "", "Phone number or @username (required)")
	fs.StringVar(&comment, "comment", "", "Order comment")
	fs.Parse(args)
	applyColors()

	if contact == "" {
		fs.Usage()
		os.Exit(1)
	}

	resp, err := doRequest("PUT", "/api/session/contact", map[string]string{
		"contact": contact,
		"comment": comment,
	})
	if err != nil {
		fatal("Failed to set contact: %v", err)
	}
	printSession(resp)
}

func runEnd(args []string) {
	fs := newFlagSet("end", "")
	fs.Parse(args)
	applyColors()

	if _, err := doRequest("DELETE", "/api/session", nil); err != nil {
		fatal("Failed to end session: %v", err)
	}
	printSuccess("Session ended")
}

// =============================================================================
// HTTP HELPERS
// =============================================================================

// doRequest sends one request as the configured host user. Session routes
// answer errors with the session view attached; those are printed before the
// error is returned.
func doRequest(method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	var reqJSON []byte

	if body != nil {
		var err error
		reqJSON, err = json.MarshalIndent(body, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reqBody = bytes.NewReader(reqJSON)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(serverURL, "/")+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	identity, err := host.FormatIdentityHeader(model.Identity{
		UserID:          userID,
		DisplayName:     userName,
		PlatformVersion: version,
	})
	if err != nil {
		return nil, fmt.Errorf("building identity header: %w", err)
	}
	req.Header.Set(host.IdentityHeader, identity)
	if token != "" {
		req.Header.Set(host.SessionHeader, token)
	}

	if !quiet {
		printRequest(method, path, reqJSON)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if !quiet && verbose {
		printResponse(resp.StatusCode, respBody, duration)
	}

	if resp.StatusCode == http.StatusNoContent {
		return map[string]interface{}{}, nil
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("HTTP %d: parsing response: %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 {
		if _, ok := result["stage"]; ok {
			printSession(result)
		}
		if e, ok := result["error"].(map[string]interface{}); ok {
			return nil, fmt.Errorf("HTTP %d: %v: %v", resp.StatusCode, e["code"], e["message"])
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return result, nil
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

// printSession renders a session view: stage, cart, main button and notices.
func printSession(resp map[string]interface{}) {
	stage, _ := resp["stage"].(string)
	if quiet {
		fmt.Println(stage)
		return
	}

	fmt.Printf("\n%sStage:%s %s%s%s\n", colorBold, colorReset, colorCyan, stage, colorReset)
	if issued, _ := resp["session_token"].(string); issued != "" && issued != token {
		fmt.Printf("  %sGuest session:%s %s (pass -session %s)\n", colorYellow, colorReset, issued, issued)
	}

	if lines, ok := resp["lines"].([]interface{}); ok && len(lines) > 0 {
		for _, l := range lines {
			lm, ok := l.(map[string]interface{})
			if !ok {
				continue
			}
			fmt.Printf("  %v x%v  %-22v %s%v%s\n", lm["icon"], lm["quantity"], lm["title"], colorGreen, lm["subtotal"], colorReset)
		}
		fmt.Printf("  %sTotal:%s %v\n", colorBold, colorReset, resp["total_label"])
	} else {
		fmt.Printf("  %s(cart empty)%s\n", colorGray, colorReset)
	}

	if contact, _ := resp["contact"].(string); contact != "" {
		fmt.Printf("  Contact: %s\n", contact)
	}

	if btn, ok := resp["main_button"].(map[string]interface{}); ok {
		if visible, _ := btn["visible"].(bool); visible {
			state := ""
			if busy, _ := btn["busy"].(bool); busy {
				state = " (busy)"
			}
			fmt.Printf("  %sMain button:%s [%v]%s\n", colorBlue, colorReset, btn["label"], state)
		} else {
			fmt.Printf("  %sMain button hidden%s\n", colorGray, colorReset)
		}
	}

	if notices, ok := resp["notices"].([]interface{}); ok {
		for _, n := range notices {
			nm, ok := n.(map[string]interface{})
			if !ok {
				continue
			}
			switch nm["kind"] {
			case string(model.NoticeError):
				printError("%v: %v", nm["title"], nm["message"])
			default:
				printSuccess("%v: %v", nm["title"], nm["message"])
			}
		}
	}

	if closeReq, _ := resp["close_requested"].(bool); closeReq {
		printSuccess("Order placed, host asked to close the web view")
	}
}

func printRequest(method, path string, body []byte) {
	fmt.Printf("\n%s▶ REQUEST%s %s%s %s%s\n", colorYellow, colorReset, colorBold, method, path, colorReset)
	if body != nil {
		printJSON(body, "  ")
	}
}

func printResponse(status int, body []byte, duration time.Duration) {
	statusColor := colorGreen
	if status >= 400 {
		statusColor = colorRed
	}
	fmt.Printf("\n%s◀ RESPONSE%s %s%d%s (%v)\n", colorCyan, colorReset, statusColor, status, colorReset, duration)
	printJSON(body, "  ")
}

func printJSON(data []byte, prefix string) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, prefix, "  "); err != nil {
		fmt.Printf("%s%s\n", prefix, string(data))
		return
	}
	fmt.Println(pretty.String())
}

func printSuccess(format string, args ...interface{}) {
	if !quiet {
		fmt.Printf("%s✓ %s%s\n", colorGreen, fmt.Sprintf(format, args...), colorReset)
	}
}

func printError(format string, args ...interface{}) {
	fmt.Printf("%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "%s✗ %s%s\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}
