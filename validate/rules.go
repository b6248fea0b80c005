// ABOUTME: The validator's rule table: interactivity, accessibility, contact-link, and mobile checks.
// ABOUTME: Element rules walk tokenized tags; document-wide rules are regex probes over the raw text.

package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule describes one check in the table.
type Rule struct {
	Name        string
	Severity    Severity
	Description string
	check       func(*document) []Issue
}

var (
	submitListener = regexp.MustCompile(`(?i)addEventListener\(\s*['"]submit['"]|\.onsubmit\b`)
	smoothScroll   = regexp.MustCompile(`(?i)scroll-behavior\s*:\s*smooth|scrollIntoView`)
	mobileMenu     = regexp.MustCompile(`(?i)hamburger|mobile-menu|mobile-nav|menu-toggle|nav-toggle`)
	classToggle    = regexp.MustCompile(`classList\.toggle\(`)
	phoneNumber    = regexp.MustCompile(`(?:\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]\d{3}[-.\s]\d{4}\b`)
	emailAddress   = regexp.MustCompile(`(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.(?:com|net|org|io|co|dev|app)\b`)
)

var rules = []Rule{
	{
		Name:        "form-handler",
		Severity:    SeverityWarning,
		Description: "forms need a submit handler",
		check:       checkFormHandler,
	},
	{
		Name:        "button-handler",
		Severity:    SeverityWarning,
		Description: "buttons need a click handler or an explicit type",
		check:       checkButtons,
	},
	{
		Name:        "anchor-scroll",
		Severity:    SeverityInfo,
		Description: "placeholder anchors should scroll smoothly",
		check:       checkAnchorScroll,
	},
	{
		Name:        "mobile-menu",
		Severity:    SeverityWarning,
		Description: "a mobile menu needs a toggle script",
		check:       checkMobileMenu,
	},
	{
		Name:        "img-alt",
		Severity:    SeverityInfo,
		Description: "images need alt text",
		check:       checkImageAlt,
	},
	{
		Name:        "phone-link",
		Severity:    SeverityInfo,
		Description: "phone numbers should be tel: links",
		check:       checkPhoneLink,
	},
	{
		Name:        "email-link",
		Severity:    SeverityInfo,
		Description: "email addresses should be mailto: links",
		check:       checkEmailLink,
	},
	{
		Name:        "viewport",
		Severity:    SeverityError,
		Description: "the page needs a viewport meta tag",
		check:       checkViewport,
	},
}

// Rules returns the rule table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

func issue(rule string, sev Severity, msg, fix string) Issue {
	return Issue{Severity: sev, Rule: rule, Message: msg, Fix: fix}
}

func checkFormHandler(d *document) []Issue {
	if submitListener.MatchString(d.raw) {
		return nil
	}
	for _, f := range d.each("form") {
		if !f.has("onsubmit") {
			return []Issue{issue("form-handler", SeverityWarning,
				"Form has no submit handler",
				"add an onsubmit handler that prevents the default and shows a confirmation")}
		}
	}
	return nil
}

func checkButtons(d *document) []Issue {
	var issues []Issue
	for _, b := range d.each("button") {
		if b.has("onclick") || b.has("type") {
			continue
		}
		label := b.attrs["id"]
		if label == "" {
			label = b.attrs["class"]
		}
		msg := "Button has no click handler"
		if label != "" {
			msg = fmt.Sprintf("Button %q has no click handler", label)
		}
		issues = append(issues, issue("button-handler", SeverityWarning, msg,
			`add an onclick handler or type="button"`))
	}
	return issues
}

func checkAnchorScroll(d *document) []Issue {
	if smoothScroll.MatchString(d.raw) {
		return nil
	}
	for _, a := range d.each("a") {
		if strings.TrimSpace(a.attrs["href"]) == "#" {
			return []Issue{issue("anchor-scroll", SeverityInfo,
				`Links point to "#" without smooth scrolling`,
				"add html { scroll-behavior: smooth; } and real section ids")}
		}
	}
	return nil
}

func checkMobileMenu(d *document) []Issue {
	if !mobileMenu.MatchString(d.raw) || classToggle.MatchString(d.raw) {
		return nil
	}
	return []Issue{issue("mobile-menu", SeverityWarning,
		"Mobile menu button has no toggle script",
		"toggle the menu with element.classList.toggle(...)")}
}

func checkImageAlt(d *document) []Issue {
	var issues []Issue
	for _, img := range d.each("img") {
		if img.has("alt") {
			continue
		}
		msg := "Image is missing alt text"
		if src := img.attrs["src"]; src != "" {
			msg = fmt.Sprintf("Image %s is missing alt text", src)
		}
		issues = append(issues, issue("img-alt", SeverityInfo, msg, "describe the image in an alt attribute"))
	}
	return issues
}

func checkPhoneLink(d *document) []Issue {
	if strings.Contains(d.raw, "tel:") || !phoneNumber.MatchString(d.raw) {
		return nil
	}
	return []Issue{issue("phone-link", SeverityInfo,
		"Phone number is not clickable",
		`wrap it in <a href="tel:...">`)}
}

func checkEmailLink(d *document) []Issue {
	if strings.Contains(d.raw, "mailto:") || !emailAddress.MatchString(d.raw) {
		return nil
	}
	return []Issue{issue("email-link", SeverityInfo,
		"Email address is not clickable",
		`wrap it in <a href="mailto:...">`)}
}

func checkViewport(d *document) []Issue {
	for _, m := range d.each("meta") {
		if strings.EqualFold(strings.TrimSpace(m.attrs["name"]), "viewport") {
			return nil
		}
	}
	return []Issue{issue("viewport", SeverityError,
		"Missing viewport meta tag; the page will not scale on phones",
		`add <meta name="viewport" content="width=device-width, initial-scale=1">`)}
}
