package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"strconv"
)

type nodeEntry struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

var defaultNodes = []nodeEntry{
	{ID: 1, Title: "Inception", Type: "movies"},
	{ID: 2, Title: "The Dark Knight", Type: "movies"},
	{ID: 3, Title: "About us", Type: "page"},
}

func main() {
	var (
		port    = flag.String("port", "9099", "port to listen on")
		data    = flag.String("data", "", "optional path to a JSON array of nodes")
		logReqs = flag.Bool("log", false, "enable request logging")
		apiKey  = flag.String("api-key", "", "require this X-API-Key value when set")
	)
	flag.Parse()

	entries := defaultNodes
	if *data != "" {
		file, err := os.ReadFile(*data)
		if err != nil {
			log.Fatalf("read mock data: %v", err)
		}
		if err := json.Unmarshal(file, &entries); err != nil {
			log.Fatalf("parse mock data: %v", err)
		}
	}

	nodes := make(map[int64]nodeEntry, len(entries))
	for _, e := range entries {
		nodes[e.ID] = e
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /nodes/{id}", func(w http.ResponseWriter, r *http.Request) {
		if *logReqs {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}
		if *apiKey != "" && r.Header.Get("X-API-Key") != *apiKey {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		entry, ok := nodes[id]
		if !ok {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(entry); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	addr := ":" + *port
	log.Printf("mock content service listening on %s with %d nodes", addr, len(nodes))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
