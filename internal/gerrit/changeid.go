// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedID is returned when a change identifier is not of the
// form <project>~<branch>~<Change-Id>.
var ErrMalformedID = errors.New("malformed change identifier")

// slash is the escaped form of "/" used in Gerrit change identifiers.
const slash = "%2F"

// A ChangeID is a parsed Gerrit change identifier, as found in the
// "id" field of a ChangeInfo entity.
// All parts keep their URL escaping, so the project "openstack/nova"
// is "openstack%2Fnova".
type ChangeID struct {
	Project string // "openstack%2Fnova"
	Branch  string // "master", "stable%2Fvictoria"
	Change  string // "I8473b95934b5732ac55d26311a706c9c2bde9940"
}

// ParseChangeID parses a change identifier of the form
// <project>~<branch>~<Change-Id>. Usually the project name starts
// with the community name followed by an escaped slash, but that
// is not required here; see [ChangeID.Community].
func ParseChangeID(id string) (ChangeID, error) {
	parts := strings.Split(id, "~")
	if len(parts) != 3 {
		return ChangeID{}, fmt.Errorf("%w: %q is not <project>~<branch>~<Change-Id>", ErrMalformedID, id)
	}
	for _, p := range parts {
		if p == "" {
			return ChangeID{}, fmt.Errorf("%w: %q has an empty part", ErrMalformedID, id)
		}
	}
	return ChangeID{Project: parts[0], Branch: parts[1], Change: parts[2]}, nil
}

// Community returns the community part of the project name:
// the text before the first escaped slash.
// It returns "" if the project name has no escaped slash.
func (id ChangeID) Community() string {
	c, _, ok := strings.Cut(id.Project, slash)
	if !ok {
		return ""
	}
	return c
}

// String returns the identifier in <project>~<branch>~<Change-Id> form.
func (id ChangeID) String() string {
	return id.Project + "~" + id.Branch + "~" + id.Change
}

// Numbered returns the <project>~<number> form of the identifier,
// which Gerrit resolves even when the Change-Id form is ambiguous or
// unknown, for instance after a change was moved or imported.
func (id ChangeID) Numbered(number int) string {
	return id.Project + "~" + strconv.Itoa(number)
}
