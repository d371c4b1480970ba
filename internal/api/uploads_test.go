package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// uploadFile posts a multipart upload with the given filename and purpose.
func uploadFile(t *testing.T, ts *httptest.Server, token, filename, purpose string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if purpose != "" {
		if err := mw.WriteField("purpose", purpose); err != nil {
			t.Fatalf("write purpose field: %v", err)
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file content: %v", err)
	}
	mw.Close()

	req, err := http.NewRequest("POST", ts.URL+"/v1/uploads/", &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST /v1/uploads: %v", err)
	}
	return resp
}

func TestUploadAndServe(t *testing.T) {
	srv := newTestServer(t)
	token := seedUser(t, srv, "u1", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := uploadFile(t, ts, token, "dinner.jpg", "food_image", []byte("jpeg bytes"))
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	up := decodeBody[uploadResponse](t, resp)
	if !strings.HasPrefix(up.Path, "food_images/") {
		t.Errorf("Path = %q, want food_images/ prefix", up.Path)
	}

	served, err := http.Get(ts.URL + up.URL)
	if err != nil {
		t.Fatalf("GET %s: %v", up.URL, err)
	}
	defer served.Body.Close()
	if served.StatusCode != http.StatusOK {
		t.Fatalf("serve status = %d, want 200", served.StatusCode)
	}
	data, _ := io.ReadAll(served.Body)
	if string(data) != "jpeg bytes" {
		t.Errorf("served content = %q", data)
	}
}

func TestUploadProfilePictureUpdatesProfile(t *testing.T) {
	srv := newTestServer(t)
	token := seedUser(t, srv, "u1", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := uploadFile(t, ts, token, "me.png", "profile_picture", []byte("png bytes"))
	defer resp.Body.Close()

	up := decodeBody[uploadResponse](t, resp)
	if !strings.HasPrefix(up.Path, "profile_pictures/") {
		t.Errorf("Path = %q, want profile_pictures/ prefix", up.Path)
	}

	user, err := srv.store.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.ProfilePicture != up.URL {
		t.Errorf("ProfilePicture = %q, want %q", user.ProfilePicture, up.URL)
	}
}

func TestUploadRejectsBadExtension(t *testing.T) {
	srv := newTestServer(t)
	token := seedUser(t, srv, "u1", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := uploadFile(t, ts, token, "script.sh", "food_image", []byte("#!/bin/sh"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestUploadRejectsBadPurpose(t *testing.T) {
	srv := newTestServer(t)
	token := seedUser(t, srv, "u1", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := uploadFile(t, ts, token, "dinner.jpg", "malware", []byte("x"))
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteUpload(t *testing.T) {
	srv := newTestServer(t)
	token := seedUser(t, srv, "u1", true)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := uploadFile(t, ts, token, "temp.gif", "food_image", []byte("gif"))
	up := decodeBody[uploadResponse](t, resp)
	resp.Body.Close()

	del := doJSON(t, "DELETE", ts.URL+"/v1/uploads/"+up.Path, token, nil)
	del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", del.StatusCode)
	}

	gone, err := http.Get(ts.URL + up.URL)
	if err != nil {
		t.Fatalf("GET after delete: %v", err)
	}
	gone.Body.Close()
	if gone.StatusCode != http.StatusNotFound {
		t.Errorf("serve after delete: status = %d, want 404", gone.StatusCode)
	}
}

func TestServeUploadUnknownFile(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/uploads/food_images/nope.jpg")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
