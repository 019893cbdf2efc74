package navigation

import "strings"

// Group is a top-level area of the app a session may be sent to.
type Group string

const (
	GroupOnboarding Group = "onboarding"
	GroupPermission Group = "permission"
	GroupLogin      Group = "login"
	GroupHome       Group = "home"
)

// Routes each group redirects to.
const (
	RouteOnboarding = "/onboarding"
	RoutePermission = "/(auth)/permission"
	RouteLogin      = "/(auth)/login"
	RouteHome       = "/(tabs)"
)

// Route returns the path a redirect to g replaces the current screen with.
func (g Group) Route() string {
	switch g {
	case GroupOnboarding:
		return RouteOnboarding
	case GroupPermission:
		return RoutePermission
	case GroupLogin:
		return RouteLogin
	default:
		return RouteHome
	}
}

// Location is the current screen as path segments, e.g. ["(auth)", "login"].
type Location []string

// ParseLocation splits a route path into segments, dropping empty ones.
func ParseLocation(route string) Location {
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}
	parts := strings.Split(route, "/")
	loc := make(Location, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			loc = append(loc, p)
		}
	}
	return loc
}

func (l Location) String() string {
	return "/" + strings.Join(l, "/")
}

func (l Location) first() string {
	if len(l) == 0 {
		return ""
	}
	return l[0]
}

// Inputs are everything the target decision depends on.
type Inputs struct {
	Authenticated         bool
	IntroSlidesShown      bool
	PermissionPromptShown bool
}

// Target is the group the app must be in for the given inputs.
func Target(in Inputs) Group {
	switch {
	case in.Authenticated:
		return GroupHome
	case !in.IntroSlidesShown:
		return GroupOnboarding
	case !in.PermissionPromptShown:
		return GroupPermission
	default:
		return GroupLogin
	}
}

// Allowed reports whether loc is a legal place to be while the target is g.
func Allowed(g Group, loc Location) bool {
	switch g {
	case GroupOnboarding:
		return loc.first() == "onboarding"
	case GroupPermission:
		return len(loc) >= 2 && loc[0] == "(auth)" && loc[1] == "permission"
	case GroupLogin:
		return loc.first() == "(auth)"
	case GroupHome:
		return loc.first() == "(tabs)" || loc.first() == "modal"
	}
	return false
}
