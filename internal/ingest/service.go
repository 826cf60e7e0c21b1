// Package ingest turns an uploaded presentation package into an ordered list
// of slide records. It drives the converter once per batch, then fetches,
// stores and annotates every slide independently so that a single bad slide
// degrades to a placeholder instead of failing the batch.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/slidenotes-api/internal/lifecycle"
	"github.com/maauso/slidenotes-api/internal/notes"
	"github.com/maauso/slidenotes-api/internal/render"
	"github.com/maauso/slidenotes-api/internal/storage"
)

// DefaultMaxConcurrentSlides bounds the per-batch fan-out.
const DefaultMaxConcurrentSlides = 4

// DefaultURLPrefix is prepended to stored asset names to form image URLs.
const DefaultURLPrefix = "/uploads/"

// DefaultMirrorTimeout bounds each upload to the mirror.
const DefaultMirrorTimeout = 30 * time.Second

// Static errors for batch-fatal failures.
var (
	// ErrStorageExhausted is returned when the quota gate refuses the batch.
	ErrStorageExhausted = errors.New("ingest: storage exhausted")
	// ErrConversionFailed is returned when the converter cannot render the package.
	ErrConversionFailed = errors.New("ingest: conversion failed")
	// ErrEmptyPackage is returned when no package bytes were supplied.
	ErrEmptyPackage = errors.New("ingest: empty package")

	errStagePanic = errors.New("ingest: slide stage panicked")
)

// QuotaError carries the storage status that caused a refusal.
type QuotaError struct {
	Status lifecycle.Status
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%v: %s", ErrStorageExhausted, e.Status.Summary())
}

// Unwrap lets errors.Is match ErrStorageExhausted.
func (e *QuotaError) Unwrap() error {
	return ErrStorageExhausted
}

// SlideRecord is the result for one slide.
type SlideRecord struct {
	SlideNumber int `json:"slideNumber"`
	// ImageURL is either the URL of a stored asset or an inline placeholder.
	ImageURL      string `json:"imageUrl"`
	Notes         string `json:"notes"`
	NotesLanguage string `json:"notesLanguage,omitempty"`
}

// Input is one uploaded package.
type Input struct {
	Filename string
	Data     []byte
}

// Renderer submits packages and fetches rendered pages.
type Renderer interface {
	Submit(ctx context.Context, filename string, data []byte) (render.Conversion, error)
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// NotesReader returns the speaker notes of a 1-based slide index.
type NotesReader interface {
	Lookup(index int) (string, error)
}

// Extractor opens a package for notes lookups.
type Extractor func(data []byte) (NotesReader, error)

// ArchiveExtractor reads notes straight from the package zip.
func ArchiveExtractor(data []byte) (NotesReader, error) {
	a, err := notes.Open(data)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Gate admits or refuses a batch.
type Gate interface {
	Admit(ctx context.Context) (bool, lifecycle.Status, error)
}

// Sweeper evicts idle assets.
type Sweeper interface {
	Sweep(ctx context.Context) (lifecycle.SweepResult, error)
}

// Mirror copies a stored asset to secondary storage.
type Mirror interface {
	Mirror(ctx context.Context, name string, data []byte) (string, error)
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxConcurrentSlides sets how many slides of one batch are processed at once.
func WithMaxConcurrentSlides(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxConcurrentSlides = n
		}
	}
}

// WithMirror enables best-effort mirroring of every stored slide image.
func WithMirror(m Mirror) ServiceOption {
	return func(s *Service) {
		s.mirror = m
	}
}

// WithMirrorTimeout bounds each mirror upload. A stalled mirror then costs a
// slide at most d and never its stored image.
func WithMirrorTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.mirrorTimeout = d
		}
	}
}

// WithURLPrefix sets the prefix used to build image URLs from asset names.
func WithURLPrefix(prefix string) ServiceOption {
	return func(s *Service) {
		s.urlPrefix = prefix
	}
}

// Service orchestrates ingestion of one package per call.
type Service struct {
	renderer            Renderer
	extractor           Extractor
	store               storage.Store
	gate                Gate
	sweeper             Sweeper
	mirror              Mirror
	mirrorTimeout       time.Duration
	logger              *slog.Logger
	maxConcurrentSlides int
	urlPrefix           string
}

// NewService creates a Service. A nil extractor uses ArchiveExtractor and a
// nil sweeper disables the pre-admission sweep.
func NewService(renderer Renderer, extractor Extractor, store storage.Store, gate Gate, sweeper Sweeper, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if extractor == nil {
		extractor = ArchiveExtractor
	}
	s := &Service{
		renderer:            renderer,
		extractor:           extractor,
		store:               store,
		gate:                gate,
		sweeper:             sweeper,
		logger:              logger,
		maxConcurrentSlides: DefaultMaxConcurrentSlides,
		urlPrefix:           DefaultURLPrefix,
		mirrorTimeout:       DefaultMirrorTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// outcome is the per-slide result before it is flattened into a record.
type outcome struct {
	record   SlideRecord
	asset    string
	imageErr error
	notesErr error
}

func (o outcome) degraded() bool {
	return o.imageErr != nil || o.notesErr != nil
}

// Ingest admits, converts and assembles one package.
//
// It fails with ErrStorageExhausted (as *QuotaError) or ErrConversionFailed
// before any slide is stored. Once the converter has answered, it always
// returns exactly one record per page, ordered by slide number.
func (s *Service) Ingest(ctx context.Context, in Input) ([]SlideRecord, error) {
	if len(in.Data) == 0 {
		return nil, ErrEmptyPackage
	}

	logger := s.logger.With(slog.String("batch_id", uuid.NewString()))

	if s.sweeper != nil {
		if _, err := s.sweeper.Sweep(ctx); err != nil {
			logger.Warn("pre-admission sweep failed", slog.String("error", err.Error()))
		}
	}

	ok, st, err := s.gate.Admit(ctx)
	switch {
	case err != nil:
		// Usage that cannot be measured does not block ingestion.
		logger.Warn("storage usage unavailable, admitting batch", slog.String("error", err.Error()))
	case !ok:
		logger.Warn("batch refused, storage exhausted", slog.String("usage", st.Summary()))
		return nil, &QuotaError{Status: st}
	}

	logger.Info("converting package",
		slog.String("filename", in.Filename),
		slog.Int("bytes", len(in.Data)),
	)

	conv, err := s.renderer.Submit(ctx, in.Filename, in.Data)
	if err != nil {
		logger.Error("conversion failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	reader, err := s.extractor(in.Data)
	if err != nil {
		logger.Warn("package notes unreadable", slog.String("error", err.Error()))
		reader = nil
	}

	outcomes := make([]outcome, conv.PageCount)

	var g errgroup.Group
	g.SetLimit(s.maxConcurrentSlides)
	for i := range outcomes {
		index := i + 1
		g.Go(func() error {
			outcomes[i] = s.slide(ctx, logger, conv, reader, index)
			return nil
		})
	}
	_ = g.Wait()

	records := make([]SlideRecord, len(outcomes))
	degraded := 0
	for i, o := range outcomes {
		records[i] = o.record
		if o.degraded() {
			degraded++
		}
	}

	logger.Info("batch ingested",
		slog.Int("slides", len(records)),
		slog.Int("degraded", degraded),
	)

	return records, nil
}

// slide produces the outcome of one page. It never fails: the image and the
// notes stages are guarded separately, so a failure in one keeps the other.
func (s *Service) slide(ctx context.Context, logger *slog.Logger, conv render.Conversion, reader NotesReader, index int) outcome {
	logger = logger.With(slog.Int("slide", index))
	o := outcome{record: SlideRecord{SlideNumber: index}}

	name, err := guard(func() (string, error) {
		return s.storeImage(ctx, logger, conv, index)
	})
	if err != nil {
		o.imageErr = err
		o.record.ImageURL = Placeholder(index)
		degrade(logger, "image", err)
	} else {
		o.asset = name
		o.record.ImageURL = s.urlPrefix + name
	}

	if reader != nil {
		text, err := guard(func() (string, error) {
			return reader.Lookup(index)
		})
		if err != nil {
			o.notesErr = err
			degrade(logger, "notes", err)
		} else {
			o.record.Notes = text
			o.record.NotesLanguage = notes.DetectLanguage(text)
		}
	}

	logger.Debug("slide processed",
		slog.String("asset", o.asset),
		slog.Int("notes_length", len(o.record.Notes)),
	)
	return o
}

// guard runs one slide stage and turns a panic into an error.
func guard(stage func() (string, error)) (v string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errStagePanic, r)
		}
	}()
	return stage()
}

func degrade(logger *slog.Logger, stage string, err error) {
	level := slog.LevelWarn
	if errors.Is(err, errStagePanic) {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, "slide degraded",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
}

// storeImage fetches a rendered page and writes it to the store.
func (s *Service) storeImage(ctx context.Context, logger *slog.Logger, conv render.Conversion, index int) (string, error) {
	locator, ok := conv.Locator(index)
	if !ok {
		return "", fmt.Errorf("%w: no locator for page %d", render.ErrDownloadFailed, index)
	}

	data, err := s.renderer.Fetch(ctx, locator)
	if err != nil {
		return "", err
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: page %d is %s, not an image", render.ErrDownloadFailed, index, mt.String())
	}

	f, err := s.store.Put(ctx, index, data, mt.Extension())
	if err != nil {
		return "", fmt.Errorf("store page %d: %w", index, err)
	}

	if s.mirror != nil {
		s.mirrorImage(ctx, logger, f.Name, data)
	}

	return f.Name, nil
}

// mirrorImage copies a stored image to the mirror. Failures are only logged.
func (s *Service) mirrorImage(ctx context.Context, logger *slog.Logger, name string, data []byte) {
	ctx, cancel := context.WithTimeout(ctx, s.mirrorTimeout)
	defer cancel()

	url, err := s.mirror.Mirror(ctx, name, data)
	if err != nil {
		logger.Warn("failed to mirror slide image",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Debug("slide image mirrored", slog.String("name", name), slog.String("url", url))
}
