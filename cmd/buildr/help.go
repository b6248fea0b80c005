// ABOUTME: Help display for the buildr CLI with grouped flags, examples, and environment status.
// ABOUTME: Provides printHelp for usage output and envStatus for API key detection.
package main

import (
	"fmt"
	"io"
	"os"
)

// printHelp writes a formatted help message to w, including usage patterns,
// grouped flags, examples, and environment status.
func printHelp(w io.Writer, ver string) {
	fmt.Fprintf(w, "buildr %s: describe a website, get a website\n", ver)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  buildr                              Start the web server")
	fmt.Fprintln(w, "  buildr [-o site.html] \"<request>\"   Build one page from the terminal")
	fmt.Fprintln(w, "  buildr -validate <page.html>        Check a page without building")
	fmt.Fprintln(w, "  buildr -token <owner>               Print an access token")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Server Flags:")
	fmt.Fprintln(w, "  -bind <addr>          Listen address (default: 127.0.0.1:2389)")
	fmt.Fprintln(w, "  -home <dir>           Data directory (default: ~/.local/share/buildr)")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Build Flags:")
	fmt.Fprintln(w, "  -o <file>             Write the page here (default: stdout)")
	fmt.Fprintln(w, "  -category <name>      Template category, e.g. restaurant, portfolio")
	fmt.Fprintln(w, "  -premium              Use the premium design prompt")
	fmt.Fprintln(w, "  -plan                 Ask for a plan instead of a page")
	fmt.Fprintln(w, "  -tui                  Full-screen progress view while building")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Other:")
	fmt.Fprintln(w, "  -token-name <name>    Display name stored with -token")
	fmt.Fprintln(w, "  -version              Print version and exit")
	fmt.Fprintln(w, "  -help                 Show this help")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  buildr -o bakery.html \"a website for a neighborhood bakery\"")
	fmt.Fprintln(w, "  buildr -category restaurant -premium \"an italian trattoria\"")
	fmt.Fprintln(w, "  buildr -tui -o shop.html \"an online shop for handmade candles\"")
	fmt.Fprintln(w, "  buildr -validate bakery.html")
	fmt.Fprintln(w, "  buildr -bind 0.0.0.0:8080")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Environment:")
	fmt.Fprintf(w, "  ANTHROPIC_API_KEY     %s\n", envStatus("ANTHROPIC_API_KEY"))
	fmt.Fprintf(w, "  OPENAI_API_KEY        %s\n", envStatus("OPENAI_API_KEY"))
	fmt.Fprintf(w, "  JWT_SECRET            %s\n", envStatus("JWT_SECRET"))
	fmt.Fprintf(w, "  PUBLISH_ENDPOINT      %s\n", envStatus("PUBLISH_ENDPOINT"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  Each key may also be set with a BUILDR_ prefix or in a .env file.")
	fmt.Fprintln(w, "  A non-loopback bind requires JWT_SECRET.")
}

// envStatus returns "[set]" if the named environment variable, bare or
// BUILDR_-prefixed, is non-empty, or "[not set]" otherwise.
func envStatus(key string) string {
	if os.Getenv(key) != "" || os.Getenv("BUILDR_"+key) != "" {
		return "[set]"
	}
	return "[not set]"
}
