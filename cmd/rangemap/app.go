package main

import (
	"github.com/banshee-data/rangemap/internal/config"
	"github.com/banshee-data/rangemap/internal/mapper"
	"github.com/banshee-data/rangemap/internal/monitoring"
	"github.com/banshee-data/rangemap/internal/navigation"
	"github.com/banshee-data/rangemap/internal/robotapi"
	"github.com/banshee-data/rangemap/internal/sensor"
	"github.com/banshee-data/rangemap/internal/survey"
	"github.com/prometheus/client_golang/prometheus"
)

// app holds the wired mapping pipeline for one robot.
type app struct {
	cfg      *config.RobotConfig
	link     *robotapi.Link
	metrics  *monitoring.MapperMetrics
	mapper   *mapper.Mapper
	lidar    *sensor.RangeSensor
	ir       *sensor.ProximitySensor
	nav      *navigation.SafeNavigator
	surveyor *survey.Surveyor
}

// simulatorConfig places a simulated robot at the configured origin inside
// a room one cell in from the grid edges.
func simulatorConfig(cfg *config.RobotConfig) robotapi.SimulatorConfig {
	w, h := float64(cfg.GetGridWidth()), float64(cfg.GetGridHeight())
	return robotapi.SimulatorConfig{
		Room:         robotapi.Room{MinX: 1, MinY: 1, MaxX: w - 1, MaxY: h - 1},
		X:            float64(cfg.GetOriginX()),
		Y:            float64(cfg.GetOriginY()),
		LidarSamples: cfg.GetLidarSamples(),
	}
}

// openLink connects to the robot, or to a simulator in dev mode.
func openLink(cfg *config.RobotConfig, dev bool) (*robotapi.Link, error) {
	if dev {
		return robotapi.NewLink(robotapi.NewSimulator(simulatorConfig(cfg))), nil
	}
	return robotapi.Open(cfg.GetSerialPort(), cfg.GetSerial())
}

func newApp(cfg *config.RobotConfig, link *robotapi.Link, reg prometheus.Registerer) (*app, error) {
	metrics, err := monitoring.NewMapperMetrics(reg)
	if err != nil {
		return nil, err
	}
	m := mapper.New(cfg.GetGridWidth(), cfg.GetGridHeight(),
		mapper.WithOrigin(cfg.GetOriginX(), cfg.GetOriginY()),
		mapper.WithMetrics(metrics),
	)
	lidar := sensor.NewRangeSensor(link, cfg.GetLidarSamples())
	ir := sensor.NewProximitySensor(link)
	return &app{
		cfg:     cfg,
		link:    link,
		metrics: metrics,
		mapper:  m,
		lidar:   lidar,
		ir:      ir,
		nav:     navigation.New(ir, link, cfg.GetSafeDistance()),
		surveyor: &survey.Surveyor{
			Lidar:         lidar,
			Mapper:        m,
			Metrics:       metrics,
			SnapshotEvery: cfg.GetSnapshotEvery(),
		},
	}, nil
}

// finish prints the map and records it to the configured map output, as
// requested on the command line.
func (a *app) finish(show, record bool) error {
	if show {
		a.mapper.ShowMap()
	}
	if !record {
		return nil
	}
	path := a.cfg.GetMapOutput()
	if err := a.mapper.WriteMap(path); err != nil {
		monitoring.Logf("failed to record map to %s: %v", path, err)
		return err
	}
	monitoring.Logf("map recorded to %s", path)
	return nil
}
