package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/venaticlol/venatic/internal/download"
	"github.com/venaticlol/venatic/internal/hub"
	"github.com/venaticlol/venatic/internal/jwt"
	"github.com/venaticlol/venatic/internal/keyValue"
	"github.com/venaticlol/venatic/internal/keyauth"
	"github.com/venaticlol/venatic/internal/models"
	"github.com/venaticlol/venatic/internal/portal"
	"github.com/venaticlol/venatic/internal/session"
	"github.com/venaticlol/venatic/internal/snowflake"
	"github.com/venaticlol/venatic/internal/storage"
	"go.uber.org/zap"
)

// LicenseChecker is the part of the licensing vendor the portal talks to.
type LicenseChecker interface {
	License(ctx context.Context, key string, hwid string) (keyauth.Result, error)
	ResetHWID(ctx context.Context, key string) (keyauth.Result, error)
}

type Handler struct {
	cfg            *models.ConfigFile
	isHttps        bool
	requestTimeout time.Duration

	sugar     *zap.SugaredLogger
	db        *sql.DB
	kv        *keyValue.Store
	hub       *hub.Hub
	jwt       *jwt.Issuer
	snowflake *snowflake.Generator
	validate  *validator.Validate

	avatars *storage.Bucket
	icons   *storage.Bucket

	accounts      *portal.Accounts
	sessions      *session.Gate
	license       LicenseChecker
	verifications *download.Gate
	fetcher       *download.Fetcher
	cooldown      *download.Cooldown
}

func New(cfg *models.ConfigFile, sugar *zap.SugaredLogger, db *sql.DB, kv *keyValue.Store, h *hub.Hub, license LicenseChecker) (*Handler, error) {
	generator, err := snowflake.New(cfg.SnowflakeWorkerID)
	if err != nil {
		return nil, err
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	// report json field names instead of struct field names
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	isHttps := cfg.TlsCert != "" && cfg.TlsKey != ""
	sessions := session.NewGate(kv)

	return &Handler{
		cfg:            cfg,
		isHttps:        isHttps,
		requestTimeout: 60 * time.Second,

		sugar:     sugar,
		db:        db,
		kv:        kv,
		hub:       h,
		jwt:       jwt.NewIssuer(cfg.JwtSecret, isHttps),
		snowflake: generator,
		validate:  validate,

		avatars: storage.New(cfg.PublicDir, "avatars", cfg.ConvertImages),
		icons:   storage.New(cfg.PublicDir, "icons", cfg.ConvertImages),

		accounts:      portal.NewAccounts(sugar, db, sessions),
		sessions:      sessions,
		license:       license,
		verifications: download.NewGate(kv),
		fetcher: download.NewFetcher(download.File{
			URLBase:  cfg.DownloadURLBase,
			FileID:   cfg.DownloadFileID,
			Ext:      cfg.DownloadExt,
			Filename: cfg.DownloadFilename,
		}, nil),
		cooldown: download.NewCooldown(kv),
	}, nil
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	// mux.Use(middleware.RequestID)
	// mux.Use(middleware.RealIP)
	if h.cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}

	r.Use(middleware.Recoverer)

	if h.cfg.Cors {
		r.Use(cors.New(cors.Options{
			AllowedOrigins:   strings.Split(h.cfg.CorsOrigins, ","),
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", keyauth.FingerprintHeader},
			AllowCredentials: true,
		}).Handler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(h.requestTimeout))
			h.chatRoutes(api)
		})
		api.Route("/portal", h.portalRoutes)
	})

	var websocketPath string

	if h.cfg.BehindNginx {
		websocketPath = "/ws/"
	} else {
		websocketPath = "/ws"
		r.Handle("/cdn/*", http.StripPrefix("/cdn/", http.FileServer(http.Dir(h.cfg.PublicDir))))
		r.Handle("/*", http.FileServer(http.Dir(h.cfg.PublicDir+"/static")))
	}

	r.With(h.UserVerifier).Get(websocketPath, h.HandleWebSocket)

	return r
}

func (h *Handler) chatRoutes(api chi.Router) {
	api.Get("/health", h.Health)

	api.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/register", h.Register)
		r.Post("/logout", h.Logout)
		r.With(h.UserVerifier).Get("/newSession", h.NewSession)
		r.With(h.UserVerifier).Get("/isLoggedIn", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	})

	api.Route("/user", func(r chi.Router) {
		r.Use(h.UserVerifier)
		r.Get("/fetch", h.GetUserInfo)
		r.Post("/update", h.UpdateUserInfo)
	})

	api.Route("/server", func(r chi.Router) {
		r.Use(h.UserVerifier)
		r.Post("/create", h.CreateServer)
		r.With(h.SessionVerifier).Get("/fetch", h.GetServerList)
		r.Post("/delete", h.DeleteServer)
		r.Post("/rename", h.RenameServer)
		r.Post("/join", h.JoinServer)
		r.Post("/leave", h.LeaveServer)
	})

	api.Route("/channel", func(r chi.Router) {
		r.Use(h.UserVerifier)
		r.Post("/create", h.CreateChannel)
		r.With(h.SessionVerifier).Get("/fetch", h.GetChannelList)
		r.Post("/rename", h.RenameChannel)
		r.Post("/delete", h.DeleteChannel)
	})

	api.Route("/message", func(r chi.Router) {
		r.Use(h.UserVerifier)
		r.Post("/create", h.CreateMessage)
		r.With(h.SessionVerifier).Get("/fetch", h.GetMessageList)
		r.Post("/edit", h.EditMessage)
		r.Post("/delete", h.DeleteMessage)
	})

	api.Route("/members", func(r chi.Router) {
		r.Use(h.UserVerifier)
		r.With(h.SessionVerifier).Get("/fetch", h.GetMemberList)
	})

	api.Route("/dm", func(r chi.Router) {
		r.Use(h.UserVerifier)
		r.Post("/open", h.OpenDirectMessage)
		r.Get("/list", h.GetDirectMessageList)
		r.Post("/send", h.CreateDirectMessageMessage)
		r.With(h.SessionVerifier).Get("/fetch", h.GetDirectMessageMessages)
	})
}

func (h *Handler) portalRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(h.requestTimeout))
		r.Post("/register", h.PortalRegister)
		r.Post("/login", h.PortalLogin)
		r.Post("/logout", h.PortalLogout)
		r.Get("/status", h.PortalStatus)

		r.Group(func(r chi.Router) {
			r.Use(h.PortalVerifier)
			r.Get("/session", h.PortalSession)
			r.Post("/license", h.CheckLicense)
			r.Post("/hwid/reset", h.ResetHWID)
			r.Get("/hwid/cooldown", h.HWIDCooldown)
		})
	})

	// the download streams for as long as the upstream takes, the fetcher
	// has its own deadline
	r.With(h.PortalVerifier).Get("/download", h.Download)
}
