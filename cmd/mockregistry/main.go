// Command mockregistry serves a small fake patient registry for local
// development: a patient resource API and a single-page change feed over the
// built-in dataset. Point an endpoint's base_url at it to exercise a full
// sync cycle without a real registry.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

type mockPatient struct {
	UUID   string `json:"uuid"`
	Person struct {
		Display       string `json:"display"`
		Gender        string `json:"gender"`
		PreferredName struct {
			GivenName  string `json:"givenName"`
			FamilyName string `json:"familyName"`
		} `json:"preferredName"`
	} `json:"person"`
}

func newMockPatient(uuid, given, family, gender string) mockPatient {
	var p mockPatient
	p.UUID = uuid
	p.Person.Display = given + " " + family
	p.Person.Gender = gender
	p.Person.PreferredName.GivenName = given
	p.Person.PreferredName.FamilyName = family
	return p
}

var dataset = []mockPatient{
	newMockPatient("672c4a51-abad-4b5e-950c-10bc262c9c1a", "Alice", "Mwangi", "F"),
	newMockPatient("8a156208-7c67-414a-9d25-6f28d2eca5a9", "Brian", "Otieno", "M"),
	newMockPatient("c1e03171-75aa-4c6f-b47e-74f1e2ab53ce", "Grace", "Njeri", "F"),
}

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	flag.Parse()

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)

	r.Get("/ws/atomfeed/patient/{token}", handleFeedPage)
	r.Get("/ws/rest/v1/patient/{uuid}", handleGetPatient)
	r.Get("/ws/rest/v1/patient", handleSearchPatients)

	fmt.Fprintf(os.Stderr, "mock registry listening on %s\n", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// handleFeedPage serves one feed page listing every dataset patient as a
// fresh entry. The page is its own via anchor, so repeated polls converge.
func handleFeedPage(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(time.RFC3339)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom">` + "\n")
	fmt.Fprintf(&b, "  <title>Patient AOP</title>\n  <updated>%s</updated>\n", now)
	b.WriteString(`  <link rel="via" href="/ws/atomfeed/patient/1" />` + "\n")
	for _, p := range dataset {
		fmt.Fprintf(&b, "  <entry>\n    <title>Patient</title>\n    <published>%s</published>\n    <updated>%s</updated>\n", now, now)
		fmt.Fprintf(&b, "    <content type=\"application/vnd.atomfeed+xml\"><![CDATA[/ws/rest/v1/patient/%s?v=full]]></content>\n  </entry>\n", p.UUID)
	}
	b.WriteString("</feed>\n")

	w.Header().Set("Content-Type", "application/atom+xml")
	_, _ = w.Write([]byte(b.String()))
}

func handleGetPatient(w http.ResponseWriter, r *http.Request) {
	uuid := chi.URLParam(r, "uuid")
	for _, p := range dataset {
		if p.UUID == uuid {
			writeJSON(w, http.StatusOK, p)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "patient not found"})
}

func handleSearchPatients(w http.ResponseWriter, r *http.Request) {
	query := strings.ToLower(r.URL.Query().Get("q"))
	var results []mockPatient
	for _, p := range dataset {
		if query != "" && strings.Contains(strings.ToLower(p.Person.Display), query) {
			results = append(results, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
