package gpu

import (
	"strings"

	"github.com/jaypipes/pcidb"
)

// Names resolves PCI vendor and product identifiers to marketing names.
// A Names without a database resolves nothing.
type Names struct {
	db *pcidb.PCIDB
}

// LoadNames opens the local pci.ids database. Failure yields an empty
// resolver and the load error.
func LoadNames(opts ...*pcidb.WithOption) (*Names, error) {
	db, err := pcidb.New(opts...)
	if err != nil {
		return &Names{}, err
	}
	return &Names{db: db}, nil
}

// Vendor returns the vendor name for vendorID.
func (n *Names) Vendor(vendorID string) string {
	if n == nil || n.db == nil {
		return ""
	}
	vendor, ok := n.db.Vendors[normalizePCIID(vendorID)]
	if !ok || vendor == nil {
		return ""
	}
	return vendor.Name
}

// Product returns the most specific product name known for the device,
// preferring the subsystem entry when one matches.
func (n *Names) Product(vendorID, deviceID, subVendorID, subDeviceID string) string {
	if n == nil || n.db == nil {
		return ""
	}
	vendorID = normalizePCIID(vendorID)
	deviceID = normalizePCIID(deviceID)
	if vendorID == "" || deviceID == "" {
		return ""
	}

	product, ok := n.db.Products[vendorID+deviceID]
	if !ok || product == nil {
		return ""
	}

	subVendorID = normalizePCIID(subVendorID)
	subDeviceID = normalizePCIID(subDeviceID)
	if subVendorID != "" && subDeviceID != "" {
		for _, subsystem := range product.Subsystems {
			if subsystem == nil {
				continue
			}
			if strings.EqualFold(subsystem.VendorID, subVendorID) && strings.EqualFold(subsystem.ID, subDeviceID) && subsystem.Name != "" {
				return subsystem.Name
			}
		}
	}

	return product.Name
}

func normalizePCIID(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "0x")
	value = strings.TrimPrefix(value, "0X")
	if value == "" {
		return ""
	}
	value = strings.ToLower(value)
	if len(value) < 4 {
		value = strings.Repeat("0", 4-len(value)) + value
	}
	return value
}
