package models

import "fmt"

// AccessLevel is the privilege tier a user holds on a project. Levels
// are totally ordered; plain integer comparison decides who outranks
// whom. The gaps between values leave room for intermediate tiers.
type AccessLevel int

const (
	GuestAccess     AccessLevel = 10
	ReporterAccess  AccessLevel = 20
	DeveloperAccess AccessLevel = 30
	MasterAccess    AccessLevel = 40
	OwnerAccess     AccessLevel = 50
)

func (l AccessLevel) Valid() bool {
	switch l {
	case GuestAccess, ReporterAccess, DeveloperAccess, MasterAccess, OwnerAccess:
		return true
	}
	return false
}

func (l AccessLevel) String() string {
	switch l {
	case GuestAccess:
		return "guest"
	case ReporterAccess:
		return "reporter"
	case DeveloperAccess:
		return "developer"
	case MasterAccess:
		return "master"
	case OwnerAccess:
		return "owner"
	}
	return fmt.Sprintf("unknown(%d)", int(l))
}

// ParseAccessLevel maps a level name to its AccessLevel value.
func ParseAccessLevel(name string) (AccessLevel, error) {
	switch name {
	case "guest":
		return GuestAccess, nil
	case "reporter":
		return ReporterAccess, nil
	case "developer":
		return DeveloperAccess, nil
	case "master":
		return MasterAccess, nil
	case "owner":
		return OwnerAccess, nil
	}
	return 0, fmt.Errorf("invalid access level: %q", name)
}

// VisibilityLevel is the project-wide exposure setting. It is
// independent of any per-user access level.
type VisibilityLevel int

const (
	PrivateVisibility  VisibilityLevel = 0
	InternalVisibility VisibilityLevel = 10
	PublicVisibility   VisibilityLevel = 20
)

func (v VisibilityLevel) Valid() bool {
	switch v {
	case PrivateVisibility, InternalVisibility, PublicVisibility:
		return true
	}
	return false
}

func (v VisibilityLevel) String() string {
	switch v {
	case PrivateVisibility:
		return "private"
	case InternalVisibility:
		return "internal"
	case PublicVisibility:
		return "public"
	}
	return fmt.Sprintf("unknown(%d)", int(v))
}

// MembershipStatus distinguishes true members from pending access
// requests stored in the same table. A requested row grants no
// privileges until approved.
type MembershipStatus string

const (
	MembershipActive    MembershipStatus = "active"
	MembershipRequested MembershipStatus = "requested"
)
