// Package auth holds the allow rules for writes to the published collections.
package auth

import (
	"errors"
	"fmt"
)

// Operation is a write on a collection
type Operation string

const (
	Insert Operation = "insert"
	Update Operation = "update"
	Remove Operation = "remove"
)

// RoleAdmin grants every rule
const RoleAdmin = "admin"

// Collections with rules
const (
	CollectionApplications           = "Applications"
	CollectionTestRuns               = "TestRuns"
	CollectionBenchmarks             = "Benchmarks"
	CollectionGrafanaDashboards      = "GrafanaDashboards"
	CollectionSnapshots              = "Snapshots"
	CollectionDsCompareConfig        = "DsCompareConfig"
	CollectionDsMetricClassification = "DsMetricClassification"
	CollectionDsChangepoints         = "DsChangepoints"
	CollectionReportPanels           = "ReportPanels"
	CollectionNotificationsChannels  = "NotificationsChannels"
	CollectionComments               = "Comments"
	CollectionGenericChecks          = "GenericChecks"
)

// ErrForbidden is returned by Authorize when no rule allows the write
var ErrForbidden = errors.New("forbidden")

// User is the caller of a write
type User struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
	Teams []string `json:"teams"`
}

// Authenticated reports whether the user is logged in
func (u *User) Authenticated() bool {
	return u != nil && u.ID != ""
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// MemberOf reports whether the user is in team
func (u *User) MemberOf(team string) bool {
	if u == nil || team == "" {
		return false
	}
	for _, t := range u.Teams {
		if t == team {
			return true
		}
	}
	return false
}

// TeamLookup returns the team owning an application
type TeamLookup func(application string) (team string, ok bool)

// Rule decides whether user may write a document of application
type Rule func(user *User, application string, teams TeamLookup) bool

// TeamMemberOrAdmin allows admins and members of the team owning the application
func TeamMemberOrAdmin(user *User, application string, teams TeamLookup) bool {
	if !user.Authenticated() {
		return false
	}
	if user.IsAdmin() {
		return true
	}
	if teams == nil {
		return false
	}
	team, ok := teams(application)
	return ok && user.MemberOf(team)
}

// AnyAuthenticated allows every logged in user
func AnyAuthenticated(user *User, _ string, _ TeamLookup) bool {
	return user.Authenticated()
}

// AdminOnly allows admins
func AdminOnly(user *User, _ string, _ TeamLookup) bool {
	return user.Authenticated() && user.IsAdmin()
}

// Rules maps collection names to the rule of each operation
type Rules map[string]map[Operation]Rule

// DefaultRules returns the rule set of the Perfana collections
func DefaultRules() Rules {
	rules := Rules{}
	for _, c := range []string{
		CollectionApplications,
		CollectionTestRuns,
		CollectionBenchmarks,
		CollectionGrafanaDashboards,
		CollectionSnapshots,
		CollectionDsCompareConfig,
		CollectionDsMetricClassification,
		CollectionDsChangepoints,
		CollectionReportPanels,
		CollectionNotificationsChannels,
	} {
		rules.Set(c, TeamMemberOrAdmin)
	}
	rules.Set(CollectionComments, AnyAuthenticated)
	rules.Set(CollectionGenericChecks, AdminOnly)
	return rules
}

// Set applies rule to every operation of collection
func (r Rules) Set(collection string, rule Rule) {
	r[collection] = map[Operation]Rule{
		Insert: rule,
		Update: rule,
		Remove: rule,
	}
}

// Allow reports whether user may perform op on a document of application in collection.
// Unknown collections and operations are denied.
func (r Rules) Allow(collection string, op Operation, user *User, application string, teams TeamLookup) bool {
	ops, ok := r[collection]
	if !ok {
		return false
	}
	rule, ok := ops[op]
	if !ok {
		return false
	}
	return rule(user, application, teams)
}

// Authorize is Allow returning ErrForbidden
func (r Rules) Authorize(collection string, op Operation, user *User, application string, teams TeamLookup) error {
	if !r.Allow(collection, op, user, application, teams) {
		return fmt.Errorf("%s on %s: %w", op, collection, ErrForbidden)
	}
	return nil
}
