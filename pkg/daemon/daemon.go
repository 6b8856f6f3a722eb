package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/config"
	"github.com/charlie0129/battstat/pkg/events"
	"github.com/charlie0129/battstat/pkg/monitor"
)

var (
	conf       *config.File
	mon        *monitor.Monitor
	hub        *events.Hub
	metrics    *statusMetrics
	publishers []statusPublisher
)

// RunOptions are command line overrides of the config file.
type RunOptions struct {
	SkipHAL      bool
	AllowNonRoot bool
}

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(accessLog(logrus.StandardLogger()))
	router.GET("/status", getStatus)
	router.GET("/backend", getBackend)
	router.GET("/composite-capable", getCompositeCapable)
	router.GET("/config", getConfig)
	router.GET("/version", getVersion)
	router.GET("/events", streamEvents)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.handler()))
	}

	return router
}

func Run(configPath string, unixSocketPath string, opts RunOptions) error {
	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon = monitor.New()
	warning, err := mon.Initialize(ctx, conf.SkipHAL() || opts.SkipHAL)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to initialize battery monitor")
	}
	if warning != "" {
		logrus.Warn(warning)
	}
	defer mon.Shutdown()

	hub = events.NewHub()
	defer hub.Close()

	if conf.Metrics() {
		metrics = newStatusMetrics()
	}

	// Publishers are set up once. Changing them needs a restart.
	publishers = setupPublishers(ctx, conf)
	defer closePublishers(publishers)

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler:           setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// A socket left over from an unclean exit would make Listen fail.
	if _, err := os.Stat(unixSocketPath); err == nil {
		logrus.Infof("removing stale socket %s", unixSocketPath)
		if err := os.Remove(unixSocketPath); err != nil {
			return pkgerrors.Wrapf(err, "failed to remove stale socket %s", unixSocketPath)
		}
	}

	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}
	defer os.Remove(unixSocketPath)

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			return pkgerrors.Wrapf(err, "failed to change permissions of %s", unixSocketPath)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		logrus.Debugln("status loop starts")
		statusLoop(ctx)
		logrus.Debugln("status loop exited")
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	cancel()
	<-loopDone

	// SSE streams only end when their subscription is closed.
	hub.Close()

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	logrus.Info("exiting")
	return nil
}
