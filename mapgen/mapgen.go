// Package mapgen renders the public members map and publishes it to object
// storage. Regeneration requests are debounced so a burst of location
// updates produces a single upload.
package mapgen

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/thisispsg/community-bot/metrics"
	"github.com/thisispsg/community-bot/models"
	"github.com/thisispsg/community-bot/repositories"
	"github.com/thisispsg/community-bot/storage"
)

//go:embed template/map.html
var templateFS embed.FS

// ObjectKey is where the rendered map lives in the bucket.
const ObjectKey = "map/index.html"

const defaultDebounce = 30 * time.Second

type profileLister interface {
	ListWithLocation(ctx context.Context) ([]models.Profile, error)
}

// Generator renders and publishes the members map.
type Generator struct {
	profiles profileLister
	players  repositories.PlayerRepository
	uploader storage.FileUploader
	logger   *slog.Logger

	tmpl     *template.Template
	trigger  chan struct{}
	debounce time.Duration
}

func New(profiles profileLister, players repositories.PlayerRepository, uploader storage.FileUploader, logger *slog.Logger) (*Generator, error) {
	tmpl, err := template.ParseFS(templateFS, "template/map.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse map template: %w", err)
	}
	return &Generator{
		profiles: profiles,
		players:  players,
		uploader: uploader,
		logger:   logger,
		tmpl:     tmpl,
		trigger:  make(chan struct{}, 1),
		debounce: defaultDebounce,
	}, nil
}

type marker struct {
	Name     string   `json:"name"`
	Location string   `json:"location"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Players  []string `json:"players"`
}

type templateData struct {
	GeneratedAt string
	MemberCount int
	MembersJSON template.JS
}

// Render produces the map HTML from current profile data. Markers carry only
// the coarse location display, never the stored address.
func (g *Generator) Render(ctx context.Context) ([]byte, error) {
	profiles, err := g.profiles.ListWithLocation(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles for map: %w", err)
	}

	ids := make([]int64, len(profiles))
	for i, p := range profiles {
		ids[i] = p.DiscordID
	}
	rosters, err := g.players.ListByMembers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load rosters for map: %w", err)
	}

	markers := make([]marker, 0, len(profiles))
	for _, p := range profiles {
		if !p.HasLocation() {
			continue
		}
		display := "Localisation définie"
		if p.LocationDisplay != nil && *p.LocationDisplay != "" {
			display = *p.LocationDisplay
		}
		names := make([]string, 0)
		for _, pl := range rosters[p.DiscordID] {
			names = append(names, pl.PlayerName)
		}
		name := p.DisplayName
		if name == "" {
			name = p.Username
		}
		markers = append(markers, marker{
			Name:     name,
			Location: display,
			Lat:      *p.Latitude,
			Lon:      *p.Longitude,
			Players:  names,
		})
	}

	markersJSON, err := json.Marshal(markers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal map markers: %w", err)
	}

	var buf bytes.Buffer
	err = g.tmpl.Execute(&buf, templateData{
		GeneratedAt: time.Now().UTC().Format("02/01/2006 15:04 UTC"),
		MemberCount: len(markers),
		MembersJSON: template.JS(markersJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render map template: %w", err)
	}
	return buf.Bytes(), nil
}

// Publish renders the map and uploads it, returning the public URL.
func (g *Generator) Publish(ctx context.Context) (string, error) {
	html, err := g.Render(ctx)
	if err != nil {
		metrics.MapPublishTotal.WithLabelValues("error").Inc()
		return "", err
	}

	result, err := g.uploader.Upload(ctx, ObjectKey, "text/html; charset=utf-8", bytes.NewReader(html))
	if err != nil {
		metrics.MapPublishTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("failed to publish map: %w", err)
	}

	metrics.MapPublishTotal.WithLabelValues("ok").Inc()
	g.logger.Info("members map published", "url", result.Location, "bytes", len(html))
	return result.Location, nil
}

// PublicURL returns where the published map is served from.
func (g *Generator) PublicURL() string {
	return g.uploader.GetPublicURL(ObjectKey)
}

// RequestUpdate schedules a regeneration. Multiple requests within the
// debounce window collapse into one publish. Never blocks.
func (g *Generator) RequestUpdate() {
	select {
	case g.trigger <- struct{}{}:
	default:
	}
}

// Run services update requests until ctx is cancelled.
func (g *Generator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-g.trigger:
		}

		timer := time.NewTimer(g.debounce)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// Drain requests that arrived during the debounce window.
		select {
		case <-g.trigger:
		default:
		}

		if _, err := g.Publish(ctx); err != nil {
			g.logger.Error("map publish failed", "error", err)
		}
	}
}
