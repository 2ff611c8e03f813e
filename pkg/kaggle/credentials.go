package kaggle

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/olistflow/olistflow/pkg/errors"
)

// ResolveCredentials locates Kaggle credentials. Resolution order:
// explicit username/key, an explicit credentials directory, a
// project-local .kaggle directory, then ~/.kaggle. This mirrors how the
// dataset was shared between team members originally: each keeps a
// kaggle.json either in the project or in their home directory.
func ResolveCredentials(username, key, credentialsDir string) (Credentials, error) {
	if username != "" && key != "" {
		return Credentials{Username: username, Key: key}, nil
	}

	dirs := make([]string, 0, 3)
	if credentialsDir != "" {
		dirs = append(dirs, credentialsDir)
	}
	dirs = append(dirs, ".kaggle")
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".kaggle"))
	}

	for _, dir := range dirs {
		path := filepath.Join(dir, "kaggle.json")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return readCredentialsFile(path)
	}

	return Credentials{}, errors.New(errors.ErrorTypeAuthentication,
		"no kaggle.json found and KAGGLE_USERNAME/KAGGLE_KEY not set")
}

func readCredentialsFile(path string) (Credentials, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: fixed credential locations
	if err != nil {
		return Credentials{}, errors.Wrap(err, errors.ErrorTypeFile, "failed to read kaggle.json")
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, errors.Wrap(err, errors.ErrorTypeData, "failed to parse kaggle.json")
	}

	if creds.Username == "" || creds.Key == "" {
		return Credentials{}, errors.New(errors.ErrorTypeData, "kaggle.json is missing username or key")
	}

	return creds, nil
}
