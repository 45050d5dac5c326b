package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/madcrx/FADirect/internal/domain"
)

// maxBody bounds request bodies accepted by the server.
const maxBody = 1 << 20

// Server serves a document store over HTTP.
type Server struct {
	docs domain.DocumentStore
	log  *zap.SugaredLogger
	mux  *http.ServeMux
}

// NewServer returns a handler for docs.
func NewServer(docs domain.DocumentStore, log *zap.SugaredLogger) *Server {
	s := &Server{docs: docs, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("GET /docs/{table}/{id}", s.get)
	s.mux.HandleFunc("PUT /docs/{table}/{id}", s.set)
	s.mux.HandleFunc("PATCH /docs/{table}/{id}", s.update)
	s.mux.HandleFunc("DELETE /docs/{table}/{id}", s.delete)
	s.mux.HandleFunc("POST /docs/{table}", s.insert)
	s.mux.HandleFunc("GET /docs/{table}", s.find)
	s.mux.HandleFunc("POST /docs/{table}/{id}/take/{field}", s.take)
	s.mux.HandleFunc("POST /docs/{table}/{id}/append/{field}", s.append)
	s.mux.HandleFunc("GET /watch/{table}", s.watch)
	return s
}

// ServeHTTP records an access log line per request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.log.Infow("request",
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"status", rec.status,
		"bytes", rec.bytes,
		"duration", time.Since(start),
	)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	st, err := s.docs.Get(r.Context(), r.PathValue("table"), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, st)
}

func (s *Server) set(w http.ResponseWriter, r *http.Request) {
	var doc domain.Document
	if !s.decode(w, r, &doc) {
		return
	}
	if err := s.docs.Set(r.Context(), r.PathValue("table"), r.PathValue("id"), doc); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var patch domain.Document
	if !s.decode(w, r, &patch) {
		return
	}
	if err := s.docs.Update(r.Context(), r.PathValue("table"), r.PathValue("id"), patch); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	if err := s.docs.Delete(r.Context(), r.PathValue("table"), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) insert(w http.ResponseWriter, r *http.Request) {
	var doc domain.Document
	if !s.decode(w, r, &doc) {
		return
	}
	id, err := s.docs.Insert(r.Context(), r.PathValue("table"), doc)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusCreated, insertResponse{ID: id})
}

func (s *Server) find(w http.ResponseWriter, r *http.Request) {
	found, err := s.docs.Find(r.Context(), r.PathValue("table"), filterFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	if found == nil {
		found = []domain.Stored{}
	}
	s.reply(w, http.StatusOK, found)
}

func (s *Server) take(w http.ResponseWriter, r *http.Request) {
	pick, err := parsePick(r.URL.Query().Get("order"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	item, ok, err := s.docs.TakeOne(r.Context(), r.PathValue("table"), r.PathValue("id"), r.PathValue("field"), pick)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.reply(w, http.StatusOK, takeResponse{Item: item})
}

func (s *Server) append(w http.ResponseWriter, r *http.Request) {
	var items []json.RawMessage
	if !s.decode(w, r, &items) {
		return
	}
	if err := s.docs.Append(r.Context(), r.PathValue("table"), r.PathValue("id"), r.PathValue("field"), items); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// watch streams changes until the client goes away.
func (s *Server) watch(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	sub, err := s.docs.Subscribe(r.Context(), r.PathValue("table"), filterFrom(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	defer sub.Cancel()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for c := range sub.C() {
		if err := enc.Encode(c); err != nil {
			s.log.Debugf("watch stream closed: %s", err)
			return
		}
		flusher.Flush()
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("write response: %s", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrDocumentNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.log.Errorf("store error: %s", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

type insertResponse struct {
	ID string `json:"id"`
}

type takeResponse struct {
	Item json.RawMessage `json:"item"`
}

func filterFrom(r *http.Request) domain.Filter {
	q := r.URL.Query()
	return domain.Filter{Field: q.Get("field"), Value: q.Get("value")}
}

func parsePick(order string) (domain.Pick, error) {
	switch order {
	case "", "lowest":
		return domain.PickLowest, nil
	case "highest":
		return domain.PickHighest, nil
	default:
		return 0, fmt.Errorf("unknown order %q", order)
	}
}

func pickName(p domain.Pick) string {
	if p == domain.PickHighest {
		return "highest"
	}
	return "lowest"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Flush lets the watch stream through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
