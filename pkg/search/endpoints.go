package search

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// BaseURL is the full-archive search API root
	BaseURL = "https://gnip-api.twitter.com/search/fullarchive/accounts"
)

// Endpoints are the two URLs a session posts to
type Endpoints struct {
	Search string
	Counts string
}

// EndpointsFor derives both URLs from an account name and stream label
func EndpointsFor(account, label string) Endpoints {
	search := fmt.Sprintf("%s/%s/%s.json", BaseURL, url.PathEscape(account), url.PathEscape(label))
	return Endpoints{Search: search, Counts: CountsURLFor(search)}
}

// CountsURLFor turns a search URL into its counts URL
func CountsURLFor(searchURL string) string {
	return strings.TrimSuffix(searchURL, ".json") + "/counts.json"
}

// ParseSearchURL extracts the account name and stream label from a full
// search URL of the form .../accounts/{account}/{label}.json
func ParseSearchURL(raw string) (account, label string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("invalid search URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("invalid search URL %q", raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "accounts" {
			account = parts[i+1]
			label = strings.TrimSuffix(parts[i+2], ".json")
			break
		}
	}
	if account == "" || label == "" || label == "counts" {
		return "", "", fmt.Errorf("search URL %q has no account and label", raw)
	}
	return account, label, nil
}

// ResolveEndpoints picks explicit URLs when given, otherwise derives them
// from account and label
func ResolveEndpoints(account, label, searchURL, countsURL string) (Endpoints, error) {
	if searchURL != "" {
		if _, _, err := ParseSearchURL(searchURL); err != nil {
			return Endpoints{}, err
		}
		if countsURL == "" {
			countsURL = CountsURLFor(searchURL)
		}
		return Endpoints{Search: searchURL, Counts: countsURL}, nil
	}
	if account == "" || label == "" {
		return Endpoints{}, fmt.Errorf("account name and label are required")
	}
	e := EndpointsFor(account, label)
	if countsURL != "" {
		e.Counts = countsURL
	}
	return e, nil
}
