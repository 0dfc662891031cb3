package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	coreconfig "github.com/m3rciful/drivebot/core/config"
	"github.com/m3rciful/drivebot/core/logger"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const oauthCallbackAddr = ":8085"

// NewService builds a Drive gateway authorized via OAuth 2.0 user credentials.
// The token is taken from GOOGLE_TOKEN_JSON or the cached token file when
// available; otherwise the installed-app browser flow runs once and the token
// is cached for subsequent starts.
func NewService(ctx context.Context, cfg coreconfig.DriveConfig) (*Service, error) {
	oauthCfg, err := oauthConfig(cfg)
	if err != nil {
		return nil, err
	}

	token, err := obtainToken(ctx, oauthCfg, cfg)
	if err != nil {
		return nil, fmt.Errorf("obtain oauth token: %w", err)
	}

	client := oauthCfg.Client(ctx, token)
	svc, err := gdrive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	logger.DRIVE.Info("drive service ready",
		slog.String("event", "drive.init"),
		slog.String("folder_id", cfg.RootFolderID),
	)
	return newService(&googleFilesAPI{svc: svc}, cfg.RootFolderID), nil
}

func oauthConfig(cfg coreconfig.DriveConfig) (*oauth2.Config, error) {
	raw := []byte(cfg.CredentialsJSON)
	if len(raw) == 0 {
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth credentials: %w", err)
		}
		raw = b
	}
	oauthCfg, err := google.ConfigFromJSON(raw, gdrive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth credentials: %w", err)
	}
	return oauthCfg, nil
}

// obtainToken loads a cached token and refreshes it, falling back to the
// interactive browser flow when nothing usable is cached.
func obtainToken(ctx context.Context, oauthCfg *oauth2.Config, cfg coreconfig.DriveConfig) (*oauth2.Token, error) {
	if token, err := loadCachedToken(cfg); err == nil {
		fresh, err := oauthCfg.TokenSource(ctx, token).Token()
		if err == nil {
			if fresh.AccessToken != token.AccessToken {
				if err := saveToken(cfg.TokenFile, fresh); err != nil {
					logger.DRIVE.Warn("token cache write failed",
						slog.String("event", "drive.token"),
						slog.String("err", err.Error()),
					)
				}
			}
			return fresh, nil
		}
		logger.DRIVE.Warn("cached token unusable, re-authenticating",
			slog.String("event", "drive.token"),
			slog.String("err", err.Error()),
		)
	}
	return tokenFromWeb(ctx, oauthCfg, cfg.TokenFile)
}

func loadCachedToken(cfg coreconfig.DriveConfig) (*oauth2.Token, error) {
	if cfg.TokenJSON != "" {
		token := &oauth2.Token{}
		if err := json.Unmarshal([]byte(cfg.TokenJSON), token); err != nil {
			return nil, fmt.Errorf("parse GOOGLE_TOKEN_JSON: %w", err)
		}
		return token, nil
	}

	f, err := os.Open(cfg.TokenFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}

// tokenFromWeb runs the installed-app flow: a local callback server receives
// the authorization code after the user approves access in the browser.
func tokenFromWeb(ctx context.Context, oauthCfg *oauth2.Config, tokenFile string) (*oauth2.Token, error) {
	oauthCfg.RedirectURL = "http://localhost" + oauthCallbackAddr + "/callback"

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			errCh <- fmt.Errorf("no authorization code in callback")
			fmt.Fprint(w, "Error: no authorization code received")
			return
		}
		codeCh <- code
		fmt.Fprint(w, "<html><body><h1>Authorization successful</h1><p>You can close this window.</p></body></html>")
	})

	server := &http.Server{Addr: oauthCallbackAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer server.Shutdown(ctx)

	authURL := oauthCfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	logger.DRIVE.Info("authorization required, open this URL in a browser",
		slog.String("event", "drive.oauth"),
		slog.String("public_url", authURL),
	)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange auth code: %w", err)
	}
	if err := saveToken(tokenFile, token); err != nil {
		logger.DRIVE.Warn("token cache write failed",
			slog.String("event", "drive.token"),
			slog.String("err", err.Error()),
		)
	}
	return token, nil
}
