package transcriber

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"thoughtcap/model"
)

// FakeBackend is an in-memory implementation of the thought-capture HTTP
// API for tests and local demos.
type FakeBackend struct {
	mu          sync.Mutex
	recordings  map[string]model.Recording
	transcripts map[string]*model.Transcription
	// pending[f] counts get-transcription calls still to answer "not yet".
	pending map[string]int
	calls   map[string]int
	next    int
	router  *mux.Router

	// fail maps an operation (list, save, get, transcribe, delete) to the
	// HTTP status it should answer with.
	fail map[string]int

	transcribeText string
	saveTranscript string
	pendingPolls   int
}

func NewFakeBackend() *FakeBackend {
	f := &FakeBackend{
		recordings:  make(map[string]model.Recording),
		transcripts: make(map[string]*model.Transcription),
		pending:     make(map[string]int),
		calls:       make(map[string]int),
		fail:        make(map[string]int),
	}
	r := mux.NewRouter().UseEncodedPath()
	api := r.PathPrefix(apiPrefix).Subrouter()
	api.HandleFunc("/list-audios", f.list).Methods(http.MethodGet)
	api.HandleFunc("/save-audio", f.save).Methods(http.MethodPost)
	api.HandleFunc("/get-transcription/{filename}", f.get).Methods(http.MethodGet)
	api.HandleFunc("/transcribe/{filename}", f.transcribe).Methods(http.MethodPost)
	api.HandleFunc("/delete-audio/{filename}", f.delete).Methods(http.MethodDelete)
	f.router = r
	return f
}

// Add seeds a recording, with a transcript when text is non-empty.
func (f *FakeBackend) Add(rec model.Recording, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if text != "" {
		f.transcripts[rec.Filename] = &model.Transcription{Text: text, Segments: []model.Segment{}}
		rec.HasTranscription = true
	}
	f.recordings[rec.Filename] = rec
}

// SetTranscript makes a transcript appear for filename.
func (f *FakeBackend) SetTranscript(filename, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts[filename] = &model.Transcription{Text: text, Segments: []model.Segment{}}
	delete(f.pending, filename)
	if rec, ok := f.recordings[filename]; ok {
		rec.HasTranscription = true
		f.recordings[filename] = rec
	}
}

// SetFail makes op answer with status; zero clears it.
func (f *FakeBackend) SetFail(op string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status == 0 {
		delete(f.fail, op)
		return
	}
	f.fail[op] = status
}

// SetTranscribeText is what on-demand transcription produces for
// recordings without a transcript. Empty makes it fail.
func (f *FakeBackend) SetTranscribeText(text string) {
	f.mu.Lock()
	f.transcribeText = text
	f.mu.Unlock()
}

// SetSaveTranscript stores text as the transcript of every later upload,
// withheld for the first pendingPolls get-transcription calls.
func (f *FakeBackend) SetSaveTranscript(text string, pendingPolls int) {
	f.mu.Lock()
	f.saveTranscript = text
	f.pendingPolls = pendingPolls
	f.mu.Unlock()
}

// Calls reports how many requests hit op ("get:<filename>" counts
// get-transcription calls per file).
func (f *FakeBackend) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeBackend) Has(filename string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.recordings[filename]
	return ok
}

func (f *FakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// begin records the call and reports a scripted failure, if any. Callers
// hold f.mu.
func (f *FakeBackend) begin(w http.ResponseWriter, op string) bool {
	f.calls[op]++
	if status := f.fail[op]; status != 0 {
		writeJSON(w, status, map[string]string{"error": op + " failed"})
		return false
	}
	return true
}

func filenameVar(r *http.Request) string {
	raw := mux.Vars(r)["filename"]
	if name, err := url.PathUnescape(raw); err == nil {
		return name
	}
	return raw
}

func (f *FakeBackend) list(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.begin(w, "list") {
		return
	}
	files := make([]model.Recording, 0, len(f.recordings))
	for _, rec := range f.recordings {
		files = append(files, rec)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Timestamp > files[j].Timestamp })
	writeJSON(w, http.StatusOK, listResponse{Files: files})
}

func (f *FakeBackend) save(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.begin(w, "save") {
		return
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing audio"})
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)
	duration, _ := strconv.Atoi(r.FormValue("duration"))

	f.next++
	stamp := time.Now().Format(model.TimestampLayout)
	name := fmt.Sprintf("recording_%s_%d.flac", stamp, f.next)
	rec := model.Recording{
		Filename:        name,
		Timestamp:       stamp,
		DurationSeconds: duration,
		SizeBytes:       int64(len(data)),
		URL:             "/audio/" + name,
	}

	pending := true
	if f.saveTranscript != "" {
		f.transcripts[name] = &model.Transcription{Text: f.saveTranscript, Segments: []model.Segment{}}
		f.pending[name] = f.pendingPolls
		pending = f.pendingPolls > 0
		rec.HasTranscription = !pending
	}
	f.recordings[name] = rec
	writeJSON(w, http.StatusOK, UploadResult{Filename: name, Pending: pending})
}

func (f *FakeBackend) get(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := filenameVar(r)
	f.calls["get:"+name]++
	if !f.begin(w, "get") {
		return
	}
	if f.pending[name] > 0 {
		f.pending[name]--
		writeJSON(w, http.StatusOK, transcriptResponse{Success: false})
		return
	}
	tr, ok := f.transcripts[name]
	if !ok {
		writeJSON(w, http.StatusOK, transcriptResponse{Success: false, Error: "not found"})
		return
	}
	if rec, ok := f.recordings[name]; ok {
		rec.HasTranscription = true
		f.recordings[name] = rec
	}
	writeJSON(w, http.StatusOK, transcriptResponse{Success: true, Transcription: tr})
}

func (f *FakeBackend) transcribe(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.begin(w, "transcribe") {
		return
	}
	name := filenameVar(r)
	rec, ok := f.recordings[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, transcriptResponse{Success: false, Error: "no such recording"})
		return
	}
	tr, ok := f.transcripts[name]
	if !ok {
		if f.transcribeText == "" {
			writeJSON(w, http.StatusOK, transcriptResponse{Success: false, Error: "transcription failed"})
			return
		}
		tr = &model.Transcription{Text: f.transcribeText, Segments: []model.Segment{}}
		f.transcripts[name] = tr
	}
	rec.HasTranscription = true
	f.recordings[name] = rec
	writeJSON(w, http.StatusOK, transcriptResponse{Success: true, Transcription: tr})
}

func (f *FakeBackend) delete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.begin(w, "delete") {
		return
	}
	name := filenameVar(r)
	if _, ok := f.recordings[name]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	delete(f.recordings, name)
	delete(f.transcripts, name)
	delete(f.pending, name)
	w.WriteHeader(http.StatusNoContent)
}
