// Package server wires the pipeline together and runs the push endpoint
// service.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/odpf/salt/log"
	"github.com/spf13/afero"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/odpf/tablevault/cmd/logger"
	"github.com/odpf/tablevault/config"
	"github.com/odpf/tablevault/core/pipeline"
	"github.com/odpf/tablevault/core/resource"
	"github.com/odpf/tablevault/ext/bigquery"
	"github.com/odpf/tablevault/ext/catalog"
	"github.com/odpf/tablevault/ext/gcs"
	"github.com/odpf/tablevault/ext/pubsub"
	"github.com/odpf/tablevault/ext/resourcemanager"
	"github.com/odpf/tablevault/internal/telemetry"
	"github.com/odpf/tablevault/server/handler"
)

const shutdownWait = 30 * time.Second

type Server struct {
	conf config.TableVault
	l    log.Logger

	httpServer *http.Server
	bucket     *blob.Bucket
	bqClient   *bigquery.Client
	publisher  *pubsub.Publisher

	cleanupFn []func()
}

// scopeLister joins the project enumeration of the resource manager with the
// dataset and table enumeration of the warehouse into the one Lister face
// the scope resolver wants.
type scopeLister struct {
	*resourcemanager.ProjectLister
	*bigquery.Client
}

func New(conf config.TableVault) (*Server, error) {
	server := &Server{
		conf: conf,
		l:    logger.NewFromConfig(conf.Log),
	}
	if err := server.setup(); err != nil {
		server.Shutdown()
		return nil, err
	}
	return server, nil
}

func (s *Server) setup() error {
	ctx := context.Background()

	fallback, err := config.LoadFallbackPolicies(afero.NewReadOnlyFs(afero.NewOsFs()), s.conf.Policies.Path)
	if err != nil {
		return err
	}

	bucket, err := blob.OpenBucket(ctx, s.conf.Store.BucketURL)
	if err != nil {
		return fmt.Errorf("unable to open state bucket %s: %w", s.conf.Store.BucketURL, err)
	}
	s.bucket = bucket
	s.cleanupFn = append(s.cleanupFn, func() {
		if err := bucket.Close(); err != nil {
			s.l.Error(fmt.Sprintf("closing state bucket failed: %s", err.Error()))
		}
	})

	bqClient, err := bigquery.NewClient(ctx, s.l, s.conf.Project)
	if err != nil {
		return err
	}
	s.bqClient = bqClient
	s.cleanupFn = append(s.cleanupFn, func() {
		if err := bqClient.Close(); err != nil {
			s.l.Error(fmt.Sprintf("closing bigquery client failed: %s", err.Error()))
		}
	})

	projectLister, err := resourcemanager.NewProjectLister(ctx, s.l)
	if err != nil {
		return err
	}

	publisher, err := pubsub.NewPublisher(ctx, s.l, s.conf.Project)
	if err != nil {
		return err
	}
	s.publisher = publisher
	s.cleanupFn = append(s.cleanupFn, func() {
		if err := publisher.Close(); err != nil {
			s.l.Error(fmt.Sprintf("closing publisher failed: %s", err.Error()))
		}
	})

	resolver := resource.NewScopeResolver(s.l, &scopeLister{projectLister, bqClient})
	flags := gcs.NewFlagStore(bucket, s.conf.Store.FlagPrefix)
	lock := gcs.NewTrackingLock(bucket, s.conf.Store.LockPrefix)
	pending := gcs.NewPendingTagStore(bucket, s.conf.Store.PendingTagPrefix)
	policyCatalog := catalog.NewBlobCatalog(bucket, s.conf.Store.CatalogPrefix)
	guard := pipeline.NewGuard(s.l, flags)

	h := handler.NewHandler(
		s.l,
		guard,
		publisher,
		handler.Topics{
			DatasetDispatch: s.conf.Transport.DatasetDispatchTopic,
			Configure:       s.conf.Transport.ConfigureTopic,
			BQSnapshot:      s.conf.Transport.BQSnapshotTopic,
			GCSSnapshot:     s.conf.Transport.GCSSnapshotTopic,
			Tag:             s.conf.Transport.TagTopic,
		},
		pipeline.NewDispatcher(s.l, guard, resolver),
		pipeline.NewDatasetDispatcher(s.l, guard, resolver),
		pipeline.NewConfigurator(s.l, guard, policyCatalog, fallback),
		pipeline.NewBQSnapshoter(s.l, guard, bqClient),
		pipeline.NewGCSSnapshoter(s.l, guard, bqClient, pending),
		pipeline.NewTagger(s.l, guard, lock, policyCatalog),
		pending,
	)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.conf.Serve.Host, s.conf.Serve.Port),
		Handler: h.Router(),
	}
	return nil
}

// Serve blocks until the process is signalled, then drains in-flight
// deliveries before returning.
func (s *Server) Serve() error {
	telemetry.NewGauge("tablevault_service_up", map[string]string{"host": s.conf.Serve.Host}).Set(1)

	errChan := make(chan error, 1)
	go func() {
		s.l.Info(fmt.Sprintf("listening on %s", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		s.l.Info(fmt.Sprintf("received %s, shutting down", sig))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Shutdown releases clients in reverse construction order. Each cleanup
// logs its own failure so one bad close never hides the rest.
func (s *Server) Shutdown() {
	for i := len(s.cleanupFn) - 1; i >= 0; i-- {
		s.cleanupFn[i]()
	}
	s.cleanupFn = nil
}
