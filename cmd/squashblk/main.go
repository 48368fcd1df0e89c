package main

import (
	"os"

	"github.com/dargueta/squashblk/blockdev"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var logger = zap.Must(zap.NewProduction())

func imageFlag() cli.Flag {
	return &cli.PathFlag{
		Name:     "image",
		Aliases:  []string{"i"},
		Usage:    "image file holding the device",
		Required: true,
	}
}

func sectorFlag() cli.Flag {
	return &cli.UintFlag{
		Name:     "sector",
		Aliases:  []string{"s"},
		Usage:    "sector number, starting from 0",
		Required: true,
	}
}

func sectorSizeFlag() cli.Flag {
	return &cli.UintFlag{
		Name:  "sector-size",
		Usage: "logical sector size in bytes",
		Value: blockdev.DefaultSectorSize,
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "squashblk",
		Usage: "Manage compressed block device images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "minimum level of log messages to show",
				Value: "info",
			},
			&cli.BoolFlag{
				Name:  "dev",
				Usage: "use human-readable development logging",
			},
		},
		Before: setUpLogging,
		After: func(*cli.Context) error {
			// Sync fails on stderr for some platforms; nothing useful to do then.
			_ = logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "format",
				Usage:  "Create or wipe an image",
				Action: formatImage,
				Flags: []cli.Flag{
					imageFlag(),
					&cli.UintFlag{
						Name:  "sectors",
						Usage: "number of sectors on the device",
					},
					&cli.StringFlag{
						Name:  "geometry",
						Usage: "size the device to match a predefined disk geometry",
					},
					sectorSizeFlag(),
				},
			},
			{
				Name:   "write",
				Usage:  "Write one sector, compressing it if possible",
				Action: writeSector,
				Flags: []cli.Flag{
					imageFlag(),
					sectorFlag(),
					sectorSizeFlag(),
					&cli.PathFlag{
						Name:  "input",
						Usage: "file to read the sector from; short input is zero-padded (default: stdin)",
					},
				},
			},
			{
				Name:   "read",
				Usage:  "Read one sector",
				Action: readSector,
				Flags: []cli.Flag{
					imageFlag(),
					sectorFlag(),
					sectorSizeFlag(),
					&cli.PathFlag{
						Name:  "output",
						Usage: "file to write the sector to (default: stdout)",
					},
				},
			},
			{
				Name:   "inspect",
				Usage:  "Show how a sector is stored",
				Action: inspectSector,
				Flags:  []cli.Flag{imageFlag(), sectorFlag(), sectorSizeFlag()},
			},
			{
				Name:   "dump",
				Usage:  "Write the decompressed contents of every sector out as a raw image",
				Action: dumpImage,
				Flags: []cli.Flag{
					imageFlag(),
					sectorSizeFlag(),
					&cli.PathFlag{
						Name:  "output",
						Usage: "file to write the raw image to (default: stdout)",
					},
				},
			},
			{
				Name:   "load",
				Usage:  "Fill the device from a raw image, compressing each sector",
				Action: loadImage,
				Flags: []cli.Flag{
					imageFlag(),
					sectorSizeFlag(),
					&cli.PathFlag{
						Name:  "input",
						Usage: "raw image to read from (default: stdin)",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Scan every configured device and print statistics",
				Action: printStats,
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "YAML device configuration",
						Required: true,
					},
				},
			},
			{
				Name:      "archive",
				Usage:     "Compress a raw image file using RLE8 and gzip",
				Action:    archiveImage,
				ArgsUsage: "SOURCE DESTINATION",
			},
			{
				Name:      "unarchive",
				Usage:     "Expand an image file made by the archive command",
				Action:    unarchiveImage,
				ArgsUsage: "SOURCE DESTINATION",
			},
		},
	}
}

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		logger.Fatal("fatal error", zap.Error(err))
	}
}
