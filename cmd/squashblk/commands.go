package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/dargueta/squashblk/blockdev"
	"github.com/dargueta/squashblk/blockdev/basicstream"
	"github.com/dargueta/squashblk/config"
	"github.com/dargueta/squashblk/disks"
	"github.com/dargueta/squashblk/drivers/common"
	"github.com/dargueta/squashblk/drivers/mmapfile"
	"github.com/dargueta/squashblk/errors"
	"github.com/dargueta/squashblk/utilities/compression"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func setUpLogging(ctx *cli.Context) error {
	cfg := config.DefaultConfig()
	cfg.Logging.Level = ctx.String("log-level")
	cfg.Logging.Development = ctx.Bool("dev")

	newLogger, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	logger = newLogger
	return nil
}

// openImage maps an existing image file and wraps it in a device.
func openImage(ctx *cli.Context) (*blockdev.Device, *mmapfile.Driver, error) {
	sectorSize := ctx.Uint("sector-size")
	driver, err := mmapfile.Open(ctx.Path("image"), blockdev.RecordSize(sectorSize))
	if err != nil {
		return nil, nil, err
	}

	device, err := blockdev.NewDevice(
		"image",
		blockdev.Raw,
		driver.TotalSectors(),
		driver,
		blockdev.WithSectorSize(sectorSize),
	)
	if err != nil {
		driver.Close()
		return nil, nil, err
	}
	return device, driver, nil
}

func formatImage(ctx *cli.Context) error {
	sectorSize := ctx.Uint("sector-size")
	totalSectors := ctx.Uint("sectors")
	slug := ctx.String("geometry")

	if slug != "" {
		if totalSectors != 0 {
			return errors.NewWithMessage(errors.EINVAL, "--sectors and --geometry are mutually exclusive")
		}
		geometry, err := disks.GetPredefinedDiskGeometry(slug)
		if err != nil {
			return err
		}
		totalSectors = geometry.SectorsOfSize(sectorSize)
	}
	if totalSectors == 0 {
		return errors.NewWithMessage(errors.EINVAL, "either --sectors or --geometry is required")
	}
	if sectorSize < blockdev.MinSectorSize {
		return errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("sector size must be at least %d", blockdev.MinSectorSize))
	}

	path := ctx.Path("image")
	driver, err := mmapfile.Create(path, blockdev.RecordSize(sectorSize), totalSectors)
	if err != nil {
		return err
	}

	logger.Info(
		"formatted image",
		zap.String("path", path),
		zap.Uint("sectors", totalSectors),
		zap.Uint("sector_size", sectorSize),
		zap.String("capacity", humanize.IBytes(uint64(totalSectors)*uint64(sectorSize))),
	)
	return driver.Close()
}

// readSectorInput reads at most `sectorSize` bytes and zero-pads the result to
// exactly one sector.
func readSectorInput(input io.Reader, sectorSize uint) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(input, int64(sectorSize)+1))
	if err != nil {
		return nil, err
	}
	if uint(len(data)) > sectorSize {
		return nil, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("input is larger than one %d-byte sector", sectorSize))
	}

	sector := make([]byte, sectorSize)
	copy(sector, data)
	return sector, nil
}

func writeSector(ctx *cli.Context) error {
	device, driver, err := openImage(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	var input io.Reader = os.Stdin
	if path := ctx.Path("input"); path != "" {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		input = file
	}

	sector, err := readSectorInput(input, device.SectorSize())
	if err != nil {
		return err
	}

	id := common.SectorID(ctx.Uint("sector"))
	if err = device.Write(id, sector); err != nil {
		return err
	}

	header, err := device.InspectRecord(id)
	if err != nil {
		return err
	}
	logger.Info(
		"wrote sector",
		zap.Uint("sector", uint(id)),
		zap.Bool("compressed", header.Compressed()),
		zap.Uint("stored_bytes", header.PayloadSize(device.SectorSize())),
	)
	return driver.Sync()
}

func readSector(ctx *cli.Context) error {
	device, driver, err := openImage(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	data, err := device.Read(common.SectorID(ctx.Uint("sector")))
	if err != nil {
		return err
	}

	var output io.Writer = ctx.App.Writer
	if path := ctx.Path("output"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		output = file
	}

	_, err = io.Copy(output, bytes.NewReader(data))
	return err
}

func dumpImage(ctx *cli.Context) error {
	device, driver, err := openImage(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	var output io.Writer = ctx.App.Writer
	if path := ctx.Path("output"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		output = file
	}

	_, err = basicstream.New(device).WriteTo(output)
	return err
}

func loadImage(ctx *cli.Context) error {
	device, driver, err := openImage(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	var input io.Reader = os.Stdin
	if path := ctx.Path("input"); path != "" {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		input = file
	}

	loaded, err := basicstream.New(device).ReadFrom(input)
	if err != nil {
		return err
	}

	stats := device.Stats()
	logger.Info(
		"loaded image",
		zap.String("size", humanize.IBytes(uint64(loaded))),
		zap.Uint64("compressed_sectors", stats.CompressedWrites),
		zap.Uint64("uncompressed_sectors", stats.UncompressedWrites),
	)
	return driver.Sync()
}

func describeRecord(id common.SectorID, header blockdev.RecordHeader, sectorSize uint) string {
	if !header.Compressed() {
		return fmt.Sprintf("sector %d: stored uncompressed (%d bytes)", id, sectorSize)
	}
	return fmt.Sprintf(
		"sector %d: compressed, %d of %d bytes (%.1f%%)",
		id,
		header.StoredSize,
		sectorSize,
		100*float64(header.StoredSize)/float64(sectorSize),
	)
}

func inspectSector(ctx *cli.Context) error {
	device, driver, err := openImage(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	id := common.SectorID(ctx.Uint("sector"))
	header, err := device.InspectRecord(id)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(ctx.App.Writer, describeRecord(id, header, device.SectorSize()))
	return err
}

func printStats(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.Path("config"))
	if err != nil {
		return err
	}

	registry, err := config.BuildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer registry.Close()

	// Devices lock independently, so scan them all at once.
	var group errgroup.Group
	for _, device := range registry.Devices() {
		device := device
		group.Go(func() error {
			for id := uint(0); id < device.TotalSectors(); id++ {
				if _, err := device.InspectRecord(common.SectorID(id)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err = group.Wait(); err != nil {
		return err
	}

	for device := registry.First(); device != nil; device = registry.Next(device) {
		stats := device.Stats()
		fmt.Fprintf(
			ctx.App.Writer,
			"%s: %s of %s sectors compressed\n",
			stats.Name,
			humanize.Comma(int64(stats.CompressedSectors)),
			humanize.Comma(int64(device.TotalSectors())),
		)
	}

	registry.LogStats()
	return registry.PrintStats(ctx.App.Writer)
}

// copyImage runs `transform` from the file at the first argument to a new file
// at the second.
func copyImage(
	ctx *cli.Context, transform func(io.Reader, io.Writer) (int64, error),
) (int64, error) {
	if ctx.NArg() != 2 {
		return 0, errors.NewWithMessage(
			errors.EINVAL, "expected exactly two arguments: SOURCE DESTINATION")
	}

	sourceFilePath := ctx.Args().Get(0)
	outputFilePath := ctx.Args().Get(1)

	sourceFile, err := os.Open(sourceFilePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file for reading: `%v`: %w", sourceFilePath, err)
	}
	defer sourceFile.Close()

	outFile, err := os.Create(outputFilePath)
	if err != nil {
		return 0, fmt.Errorf("failed to open file for writing: `%v`: %w", outputFilePath, err)
	}
	defer outFile.Close()

	written, err := transform(sourceFile, outFile)
	if err != nil {
		return written, err
	}
	return written, outFile.Sync()
}

func archiveImage(ctx *cli.Context) error {
	written, err := copyImage(ctx, compression.CompressImage)
	if err != nil {
		return err
	}
	logger.Info("archived image", zap.String("rle8_size", humanize.IBytes(uint64(written))))
	return nil
}

func unarchiveImage(ctx *cli.Context) error {
	written, err := copyImage(ctx, compression.DecompressImage)
	if err != nil {
		return err
	}
	logger.Info("expanded image", zap.String("size", humanize.IBytes(uint64(written))))
	return nil
}
