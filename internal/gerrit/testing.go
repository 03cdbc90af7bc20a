// Copyright 2024 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gerrit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/reviewspy/internal/community"
	"golang.org/x/tools/txtar"
)

// A TestServer is a fake Gerrit server that serves canned responses,
// for use in tests. Responses are keyed by escaped request path,
// ignoring the query string.
type TestServer struct {
	*httptest.Server

	mu        sync.Mutex
	responses map[string]testResponse
	requests  []string // request URIs, in arrival order
}

type testResponse struct {
	status int
	body   string
}

// NewTestServer starts and returns a new TestServer with no responses.
// The caller should call Close when finished.
func NewTestServer() *TestServer {
	s := &TestServer{responses: make(map[string]testResponse)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

func (s *TestServer) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.RequestURI)
	resp, ok := s.responses[r.URL.EscapedPath()]
	s.mu.Unlock()

	if !ok {
		http.Error(w, "Not found: "+r.URL.EscapedPath(), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(resp.status)
	fmt.Fprint(w, resp.body)
}

// Handle arranges for requests to the escaped path to get a response
// with the given status. Successful responses carry the anti-hijacking
// prefix Gerrit adds to JSON bodies; other bodies are served verbatim.
func (s *TestServer) Handle(path string, status int, body string) {
	if status == http.StatusOK {
		body = ")]}'\n" + body
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = testResponse{status: status, body: body}
}

// HandleRaw is like Handle but serves body verbatim even for
// successful responses.
func (s *TestServer) HandleRaw(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[path] = testResponse{status: status, body: body}
}

// Requests returns the request URIs the server has received, in order.
func (s *TestServer) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Registry returns a registry in which each named community
// is served by s.
func (s *TestServer) Registry(names ...string) *community.Registry {
	var list []community.Community
	for _, name := range names {
		list = append(list, community.Community{Name: name, URL: s.URL})
	}
	r, err := community.New(list...)
	if err != nil {
		// unreachable unless names has duplicates
		panic(err)
	}
	return r
}

// LoadTxtar loads responses from the named txtar file.
//
// The file should contain a txtar archive (see [golang.org/x/tools/txtar]).
// Each file in the archive is named by an escaped request path,
// optionally followed by a space and an HTTP status code (default 200),
// for example “/changes/openstack%2Fnova~master~I1/comments 404”.
// The file content is the response body, passed to [TestServer.Handle].
func (s *TestServer) LoadTxtar(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	err = s.LoadTxtarData(data)
	if err != nil {
		err = &os.PathError{Op: "load", Path: file, Err: err}
	}
	return err
}

// LoadTxtarData loads responses from the txtar file content data.
// See [TestServer.LoadTxtar] for a description of the format.
func (s *TestServer) LoadTxtarData(data []byte) error {
	ar := txtar.Parse(data)
	for _, file := range ar.Files {
		path, code, _ := strings.Cut(file.Name, " ")
		status := http.StatusOK
		if code != "" {
			n, err := strconv.Atoi(code)
			if err != nil {
				return fmt.Errorf("%s: invalid status %q", file.Name, code)
			}
			status = n
		}
		s.Handle(path, status, strings.TrimSuffix(string(file.Data), "\n"))
	}
	return nil
}
