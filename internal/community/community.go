// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package community records the Gerrit communities that reviewspy
// knows how to query.
//
// A community is a named Gerrit server, such as "openstack" for
// https://review.opendev.org. The set of communities is read once,
// from the embedded communities.yaml or from a file named on the
// command line, and is immutable afterward.
package community

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// A Community is a Gerrit server that hosts projects.
type Community struct {
	Name string `yaml:"name"` // "openstack"
	URL  string `yaml:"url"`  // "https://review.opendev.org", no trailing slash
}

// A Registry is an immutable set of communities, indexed by name.
type Registry struct {
	byName map[string]*Community
	names  []string // in declaration order
}

//go:embed communities.yaml
var defaultYAML []byte

// Default returns the registry described by the embedded communities.yaml.
// It panics if the embedded file is invalid.
func Default() *Registry {
	r, err := Parse(defaultYAML)
	if err != nil {
		panic("community: embedded communities.yaml: " + err.Error())
	}
	return r
}

// Load reads a registry from the YAML file named by file.
func Load(file string) (*Registry, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return r, nil
}

// Parse parses a registry from YAML of the form
//
//	communities:
//	  - name: openstack
//	    url: https://review.opendev.org
func Parse(data []byte) (*Registry, error) {
	var contents struct {
		Communities []Community `yaml:"communities"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&contents); err != nil {
		return nil, err
	}
	return New(contents.Communities...)
}

// New returns a registry holding the given communities.
// Names must be unique and non-empty, and each URL must be an
// absolute http or https URL.
func New(list ...Community) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Community)}
	for _, c := range list {
		if strings.TrimSpace(c.Name) == "" {
			return nil, errors.New("community with empty name")
		}
		if _, ok := r.byName[c.Name]; ok {
			return nil, fmt.Errorf("duplicate community %q", c.Name)
		}
		u, err := url.Parse(c.URL)
		if err != nil {
			return nil, fmt.Errorf("community %q: %v", c.Name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
			return nil, fmt.Errorf("community %q: url %q is not an absolute http(s) URL", c.Name, c.URL)
		}
		c.URL = strings.TrimSuffix(c.URL, "/")
		r.byName[c.Name] = &c
		r.names = append(r.names, c.Name)
	}
	return r, nil
}

// IsSupported reports whether name is a community in r.
func (r *Registry) IsSupported(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Lookup returns the community with the given name.
// The result must not be modified.
func (r *Registry) Lookup(name string) (*Community, bool) {
	c, ok := r.byName[name]
	return c, ok
}

// Names returns the community names in declaration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}
