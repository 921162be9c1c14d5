package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/CraigglesO/mercator-to-s2/internal/engine"
	"github.com/CraigglesO/mercator-to-s2/internal/log"
	"github.com/CraigglesO/mercator-to-s2/internal/store"
	"github.com/CraigglesO/mercator-to-s2/pkg/proj"
	"github.com/CraigglesO/mercator-to-s2/pkg/tile"
)

const version = "1.0.0"

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mercator-to-s2",
	Short: "Reproject web mercator raster tiles onto the S2 cube-sphere",
	Long: `mercator-to-s2 converts a pyramid of web mercator raster tiles into
tiles addressed by S2 cube faces.

Every output tile covers one cell of a cube face. Each of its pixels is
projected through the sphere back into the mercator pyramid and copied
from the source tile it lands in; pixels over missing source tiles get
a background color.

Examples:
  # Build zoom 0 cube tiles (one per face) from a zoom 2 mercator pyramid
  mercator-to-s2 --input-zoom 2 -i ./img --output-zoom 0 -o ./out

  # WGS84 source rows with top-down row order and a custom background
  mercator-to-s2 --srs WGS84 --tms=false --background 0,0,0,255

  # Pull sources straight from a tile server (XYZ row order)
  mercator-to-s2 -u "https://tile.openstreetmap.org/{z}/{x}/{y}.png" --tms=false --input-zoom 3

  # Read sources from a GeoPackage and mirror the output into one
  mercator-to-s2 --input-gpkg world.gpkg --gpkg-table tiles --output-gpkg cube.gpkg

  # Start HTTP server
  mercator-to-s2 serve --port 8080`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mercator-to-s2.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	// Pyramid options
	rootCmd.Flags().Int("input-zoom", 2, "zoom level of the source mercator pyramid")
	rootCmd.Flags().StringP("input", "i", "./img", "folder holding source tiles as {zoom}/{x}/{y}.png")
	rootCmd.Flags().Int("output-zoom", 0, "zoom level of the cube pyramid to build")
	rootCmd.Flags().StringP("output", "o", "./out", "folder to write cube tiles as {face}/{zoom}/{x}/{y}.png")
	rootCmd.Flags().IntP("tile-size", "t", tile.DefaultSize, "tile edge length in pixels")

	// Source interpretation
	rootCmd.Flags().Bool("tms", true, "source rows are TMS style (row zero at the south edge)")
	rootCmd.Flags().String("srs", string(proj.SRSSphericalMercator), "source projection (900913|WGS84)")
	rootCmd.Flags().String("background", "9,8,17,255", "fill color 'r,g,b,a' for pixels with no source tile")

	// Run options
	rootCmd.Flags().IntP("workers", "w", 0, "parallel workers (0 means one per CPU)")
	rootCmd.Flags().Bool("fail-fast", false, "stop handing out tiles after the first failure")

	// Alternative sources
	rootCmd.Flags().StringP("input-url", "u", "", "read source tiles from this URL template with {z}, {x}, {y} placeholders")
	rootCmd.Flags().String("user-agent", "mercator-to-s2/"+version, "HTTP User-Agent header for --input-url requests")
	rootCmd.Flags().String("input-gpkg", "", "read source tiles from this GeoPackage instead of --input")
	rootCmd.Flags().String("gpkg-table", "tiles", "tile table to read from the source GeoPackage")
	rootCmd.Flags().String("output-gpkg", "", "also mirror built tiles into this GeoPackage")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("input-zoom", rootCmd.Flags().Lookup("input-zoom"))
	viper.BindPFlag("input", rootCmd.Flags().Lookup("input"))
	viper.BindPFlag("output-zoom", rootCmd.Flags().Lookup("output-zoom"))
	viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("tile-size", rootCmd.Flags().Lookup("tile-size"))
	viper.BindPFlag("tms", rootCmd.Flags().Lookup("tms"))
	viper.BindPFlag("srs", rootCmd.Flags().Lookup("srs"))
	viper.BindPFlag("background", rootCmd.Flags().Lookup("background"))
	viper.BindPFlag("workers", rootCmd.Flags().Lookup("workers"))
	viper.BindPFlag("fail-fast", rootCmd.Flags().Lookup("fail-fast"))
	viper.BindPFlag("input-url", rootCmd.Flags().Lookup("input-url"))
	viper.BindPFlag("user-agent", rootCmd.Flags().Lookup("user-agent"))
	viper.BindPFlag("input-gpkg", rootCmd.Flags().Lookup("input-gpkg"))
	viper.BindPFlag("gpkg-table", rootCmd.Flags().Lookup("gpkg-table"))
	viper.BindPFlag("output-gpkg", rootCmd.Flags().Lookup("output-gpkg"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".mercator-to-s2" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mercator-to-s2")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// engineConfigFromViper assembles the run configuration shared by the
// build and serve commands.
func engineConfigFromViper() (engine.Config, error) {
	cfg := engine.Config{
		InputZoom:  viper.GetInt("input-zoom"),
		OutputZoom: viper.GetInt("output-zoom"),
		TileSize:   viper.GetInt("tile-size"),
		TMSStyle:   viper.GetBool("tms"),
		SRS:        proj.SRS(viper.GetString("srs")),
		Workers:    viper.GetInt("workers"),
		FailFast:   viper.GetBool("fail-fast"),
	}

	background, err := tile.ParseRGBA(viper.GetString("background"))
	if err != nil {
		return cfg, err
	}
	cfg.Background = background

	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg, cfg.Validate()
}

func runBuild() error {
	log.Setup(viper.GetBool("verbose"))
	defer log.Sync()

	cfg, err := engineConfigFromViper()
	if err != nil {
		return err
	}

	var src store.SourceStore
	switch {
	case viper.GetString("input-gpkg") != "":
		gp, err := store.OpenGeoPackage(viper.GetString("input-gpkg"))
		if err != nil {
			return err
		}
		defer gp.Close()
		src = store.NewGPKGSource(gp, viper.GetString("gpkg-table"))
	case viper.GetString("input-url") != "":
		src = store.NewHTTPSource(viper.GetString("input-url"), viper.GetString("user-agent"))
	default:
		src = store.NewFSSource(viper.GetString("input"))
	}

	out := store.NewFSOutput(viper.GetString("output"))

	var opts []engine.Option
	if uri := viper.GetString("output-gpkg"); uri != "" {
		gp, err := store.CreateGeoPackage(uri)
		if err != nil {
			return err
		}
		defer gp.Close()
		mirror, err := store.NewGPKGOutput(gp)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithMirror(mirror))
	}

	q := engine.NewQueue(cfg.OutputZoom)
	opts = append(opts, engine.WithProgress(progressLogger(q.Total())))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting reprojection",
		zap.Int("input_zoom", cfg.InputZoom),
		zap.Int("output_zoom", cfg.OutputZoom),
		zap.Int("tile_size", cfg.TileSize),
		zap.String("srs", string(cfg.SRS)),
		zap.Int("workers", cfg.Workers),
		zap.Int64("tiles", q.Total()))

	stats, err := engine.New(cfg, src, out, opts...).Run(ctx, q)
	if err != nil {
		return err
	}

	log.Info("reprojection finished",
		zap.Int64("built", stats.Built),
		zap.Int64("skipped", stats.Skipped),
		zap.Int64("failed", stats.Failed),
		zap.Duration("elapsed", stats.Elapsed))

	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d tiles failed", stats.Failed, stats.Total)
	}
	return nil
}

// progressLogger logs roughly every five percent of the run.
func progressLogger(total int64) func(engine.Progress) {
	step := total / 20
	if step < 1 {
		step = 1
	}
	return func(p engine.Progress) {
		if p.Completed%step == 0 || p.Completed == p.Total {
			log.Info("progress",
				zap.Int64("completed", p.Completed),
				zap.Int64("total", p.Total))
		}
	}
}
