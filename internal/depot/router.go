package depot

import "net/http"

// Handler returns an http.Handler exposing the upload coordinator API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Upload lifecycle
	mux.HandleFunc("POST /uploads", s.handlePrepare)
	mux.HandleFunc("PUT /uploads/{id}/chunks/{index}", func(w http.ResponseWriter, r *http.Request) {
		s.handleUploadChunk(w, r, r.PathValue("id"), r.PathValue("index"))
	})
	mux.HandleFunc("POST /uploads/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		s.handleComplete(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("DELETE /uploads/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.handleAbort(w, r, r.PathValue("id"))
	})

	// Catalog
	mux.HandleFunc("GET /files", s.handleListFiles)
	mux.HandleFunc("GET /files/{name...}", func(w http.ResponseWriter, r *http.Request) {
		s.handleDownload(w, r, r.PathValue("name"))
	})

	return LogRequest(Recoverer(SlashFix(mux)))
}
