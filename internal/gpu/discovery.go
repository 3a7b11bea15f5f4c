package gpu

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	pciDevicesPath = "bus/pci/devices"

	// PCI base class 0x03: display controller
	displayClassPrefix = "0x03"

	// VendorNVIDIA is the PCI vendor id of NVIDIA devices.
	VendorNVIDIA = "10de"
)

// Device describes a display-class PCI device found in sysfs.
type Device struct {
	Address  string `json:"pci_address"`
	VendorID string `json:"vendor_id"`
	DeviceID string `json:"device_id"`
	Vendor   string `json:"vendor"`
	Name     string `json:"name"`
	Driver   string `json:"driver"`
}

// IsNVIDIA reports whether the device is made by NVIDIA.
func (d Device) IsNVIDIA() bool {
	return d.VendorID == VendorNVIDIA
}

// Discover lists display controllers under root/bus/pci/devices, sorted by
// PCI address. A missing PCI tree yields no devices and no error.
func Discover(root string, names *Names, logger *slog.Logger) ([]Device, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	sysRoot, err := os.OpenRoot(root)
	if err != nil {
		return nil, fmt.Errorf("open sysfs root: %w", err)
	}
	defer sysRoot.Close()

	entries, err := fs.ReadDir(sysRoot.FS(), pciDevicesPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("pci device path missing", "path", filepath.Join(root, pciDevicesPath))
			return nil, nil
		}
		return nil, fmt.Errorf("read pci device dir: %w", err)
	}

	var devices []Device
	for _, entry := range entries {
		if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}

		address := entry.Name()
		devRoot, err := sysRoot.OpenRoot(filepath.Join(pciDevicesPath, address))
		if err != nil {
			logger.Debug("failed to open pci device", "pci", address, "err", err)
			continue
		}

		device, ok := loadDevice(address, devRoot, names)
		if err := devRoot.Close(); err != nil {
			logger.Debug("failed to close pci device root", "pci", address, "err", err)
		}
		if ok {
			devices = append(devices, device)
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].Address < devices[j].Address
	})
	return devices, nil
}

func loadDevice(address string, devRoot *os.Root, names *Names) (Device, bool) {
	class, err := readTrim(devRoot, "class")
	if err != nil || !strings.HasPrefix(strings.ToLower(class), displayClassPrefix) {
		return Device{}, false
	}

	vendorID, _ := readTrim(devRoot, "vendor")
	deviceID, _ := readTrim(devRoot, "device")
	subVendor, _ := readTrim(devRoot, "subsystem_vendor")
	subDevice, _ := readTrim(devRoot, "subsystem_device")

	var driver string
	if data, err := devRoot.ReadFile("uevent"); err == nil {
		driver = parseKeyValue(string(data), "DRIVER")
	}

	device := Device{
		Address:  address,
		VendorID: normalizePCIID(vendorID),
		DeviceID: normalizePCIID(deviceID),
		Driver:   driver,
	}
	device.Vendor = names.Vendor(device.VendorID)
	device.Name = names.Product(device.VendorID, device.DeviceID, subVendor, subDevice)
	return device, true
}

func parseKeyValue(data, key string) string {
	prefix := key + "="
	scanner := bufio.NewScanner(strings.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return ""
}

func readTrim(root *os.Root, name string) (string, error) {
	data, err := root.ReadFile(name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
