package datacontext

import (
	"fmt"
	"strings"

	"codeart/internal/core/lock"
)

// QueryLevel is the read-access policy of a repository query.
type QueryLevel uint8

const (
	// LevelNone takes no lock.
	LevelNone QueryLevel = iota
	// LevelReadOnly takes a shared lock and yields to exclusive holders.
	LevelReadOnly
	// LevelSingle holds an exclusive lock until the transaction ends.
	LevelSingle
	// LevelHoldSingle is exclusive and keeps the aggregate locked for the rest
	// of the transaction so internal mutation never races other sessions.
	LevelHoldSingle
	// LevelShare is exclusive access used for writer coordination.
	LevelShare
	// LevelMirroring takes no lock while querying; the results are locked
	// together once, right before the commit flush.
	LevelMirroring
)

// LevelPolicy is what a query level implies for the data context and the repository.
type LevelPolicy struct {
	ForcesTimely bool
	Mirrors      bool
	LockMode     lock.Mode
}

var levelPolicies = [...]LevelPolicy{
	LevelNone:       {},
	LevelReadOnly:   {LockMode: lock.Shared},
	LevelSingle:     {ForcesTimely: true, LockMode: lock.Exclusive},
	LevelHoldSingle: {ForcesTimely: true, LockMode: lock.Exclusive},
	LevelShare:      {ForcesTimely: true, LockMode: lock.Exclusive},
	LevelMirroring:  {Mirrors: true},
}

var levelNames = [...]string{
	LevelNone:       "none",
	LevelReadOnly:   "readonly",
	LevelSingle:     "single",
	LevelHoldSingle: "holdsingle",
	LevelShare:      "share",
	LevelMirroring:  "mirroring",
}

// Policy returns the level's policy. Unknown levels behave like LevelNone.
func (l QueryLevel) Policy() LevelPolicy {
	if int(l) < len(levelPolicies) {
		return levelPolicies[l]
	}
	return LevelPolicy{}
}

func (l QueryLevel) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("QueryLevel(%d)", uint8(l))
}

// ParseQueryLevel maps a name (case-insensitive, "" means none) to a level.
func ParseQueryLevel(s string) (QueryLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelNone, nil
	}
	for i, name := range levelNames {
		if name == s {
			return QueryLevel(i), nil
		}
	}
	return LevelNone, fmt.Errorf("unknown query level %q", s)
}
