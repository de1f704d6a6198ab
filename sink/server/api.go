package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cyclopcam/dbh"
	"github.com/cyclopcam/threatwatch/sink/server/model"
	"github.com/cyclopcam/threatwatch/sink/server/storage"
	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
	"gorm.io/gorm"
)

func (s *Server) setupHttpRoutes() {
	router := httprouter.New()

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, handle)
	}

	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	ratelimited("POST", "/api/alerts/create/", s.httpCreateAlert, max(s.Config.RequestsPerIP, 1), time.Minute)
	handle("GET", "/api/alerts/summaries/", s.httpSummaries)
	handle("GET", "/api/alerts/:id/snapshot", s.httpSnapshot)
	handle("GET", "/api/alerts/:id/clip", s.httpClip)

	s.httpRouter = router
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	type pingJSON struct {
		Time int64 `json:"time"`
	}
	www.SendJSON(w, &pingJSON{Time: time.Now().Unix()})
}

func (s *Server) httpCreateAlert(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	maxBytes := int64(s.Config.MaxUploadMB) * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(32 * 1024 * 1024); err != nil {
		www.PanicBadRequestf("Invalid multipart body: %v", err)
	}
	defer r.MultipartForm.RemoveAll()

	alert := model.Alert{
		CreatedAt:     dbh.MakeIntTime(time.Now()),
		ViolationType: strings.TrimSpace(r.FormValue("violation_type")),
		CameraID:      strings.TrimSpace(r.FormValue("camera_id")),
		Summary:       r.FormValue("summary"),
	}
	missing := []string{}
	if alert.ViolationType == "" {
		missing = append(missing, "violation_type")
	}
	if alert.CameraID == "" {
		missing = append(missing, "camera_id")
	}
	if len(missing) != 0 {
		s.Log.Warnf("Invalid alert received. Missing %v", strings.Join(missing, ", "))
		www.PanicBadRequestf("Missing fields: %v", strings.Join(missing, ", "))
	}

	www.Check(s.DB.Create(&alert).Error)

	// Blob names depend on the ID, so they're written after the row exists.
	// If anything fails, we remove the row and whatever blobs were written.
	written := []string{}
	fail := func(err error) {
		ctx := context.Background()
		for _, name := range written {
			s.storage.DeleteFile(ctx, name)
		}
		s.DB.Delete(&model.Alert{}, alert.ID)
		www.Check(err)
	}

	if fh := formFile(r, "snapshot"); fh != nil {
		name := fmt.Sprintf("alerts/%v/snapshot.jpg", alert.ID)
		size, err := s.writeUpload(r.Context(), name, fh)
		if err != nil {
			fail(err)
		}
		written = append(written, name)
		alert.SnapshotName = name
		alert.SnapshotSize = size
	}
	if fh := formFile(r, "clip"); fh != nil {
		ext := strings.ToLower(path.Ext(fh.Filename))
		if ext == "" {
			ext = ".mp4"
		}
		name := fmt.Sprintf("alerts/%v/clip%v", alert.ID, ext)
		size, err := s.writeUpload(r.Context(), name, fh)
		if err != nil {
			fail(err)
		}
		written = append(written, name)
		alert.ClipName = name
		alert.ClipSize = size
		alert.ClipType = fh.Header.Get("Content-Type")
	}
	if len(written) != 0 {
		if err := s.DB.Save(&alert).Error; err != nil {
			fail(err)
		}
	}

	s.Log.Infof("Alert %v received from %v: %v", alert.ID, alert.CameraID, alert.Summary)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	www.SendJSON(w, &alert)
}

// Returns nil if the form has no such file
func formFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil
	}
	return r.MultipartForm.File[field][0]
}

func (s *Server) writeUpload(ctx context.Context, name string, fh *multipart.FileHeader) (int64, error) {
	f, err := fh.Open()
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return storage.WriteFile(ctx, s.storage, name, f)
}

// Most recent alerts with a summary, newest first
func (s *Server) httpSummaries(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	alerts := []model.Alert{}
	www.Check(s.DB.Where("summary <> ''").Order("created_at DESC, id DESC").Limit(max(s.Config.SummaryLimit, 1)).Find(&alerts).Error)
	www.SendJSON(w, alerts)
}

func (s *Server) getAlertOrPanic(idStr string) *model.Alert {
	alert := model.Alert{}
	err := s.DB.First(&alert, www.ParseID(idStr)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		www.PanicNotFound()
	}
	www.Check(err)
	return &alert
}

func (s *Server) httpSnapshot(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	alert := s.getAlertOrPanic(params.ByName("id"))
	if alert.SnapshotName == "" {
		www.PanicNotFound()
	}
	s.sendBlob(w, r, alert.SnapshotName, "image/jpeg")
}

func (s *Server) httpClip(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	alert := s.getAlertOrPanic(params.ByName("id"))
	if alert.ClipName == "" {
		www.PanicNotFound()
	}
	contentType := alert.ClipType
	if contentType == "" {
		contentType = "video/mp4"
	}
	s.sendBlob(w, r, alert.ClipName, contentType)
}

func (s *Server) sendBlob(w http.ResponseWriter, r *http.Request, name, contentType string) {
	f, err := s.storage.ReadFile(r.Context(), name)
	www.Check(err)
	defer f.Reader.Close()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", fmt.Sprintf("%v", f.Size))
	www.CacheImmutable(w)
	io.Copy(w, f.Reader)
}
