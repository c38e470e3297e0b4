package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/portalapi"
)

// uploadPaths are the files named on the command line for each upload.
type uploadPaths struct {
	Photo     string
	Signature string
	CV        string
	WorkCert  string
	QualCert  string
}

// loadForm reads the personal details from a JSON file and attaches the uploads.
func loadForm(path string, files uploadPaths) (portalapi.RegisterRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return portalapi.RegisterRequest{}, fmt.Errorf("read form: %w", err)
	}
	var info domain.PersonalInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return portalapi.RegisterRequest{}, fmt.Errorf("parse form %s: %w", path, err)
	}
	req := portalapi.RegisterRequest{PersonalInfo: info}
	for _, f := range []struct {
		path string
		dst  *string
	}{
		{files.Photo, &req.Photo},
		{files.Signature, &req.Signature},
		{files.CV, &req.CV},
		{files.WorkCert, &req.WorkCert},
		{files.QualCert, &req.QualCert},
	} {
		if strings.TrimSpace(f.path) == "" {
			continue
		}
		if *f.dst, err = dataURLFromFile(f.path); err != nil {
			return portalapi.RegisterRequest{}, err
		}
	}
	return req, nil
}

// dataURLFromFile encodes a file as a base64 data URL.
func dataURLFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
