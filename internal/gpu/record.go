package gpu

import "math"

// Record is one GPU as reported by a single inventory invocation.
type Record struct {
	Index              int     `json:"index"`
	Name               string  `json:"name"`
	UtilizationPercent float64 `json:"utilization_percent"`
	MemoryUsedMB       float64 `json:"memory_used_mb"`
	MemoryTotalMB      float64 `json:"memory_total_mb"`
	MemoryPercent      float64 `json:"memory_percent"`
	TemperatureC       float64 `json:"temperature_c"`
	PowerDrawW         float64 `json:"power_draw_w"`
	PowerLimitW        float64 `json:"power_limit_w"`
	PowerPercent       float64 `json:"power_percent"`
}

func newRecord(index int, name string, util, memUsed, memTotal, temp, powerDraw, powerLimit float64) Record {
	return Record{
		Index:              index,
		Name:               name,
		UtilizationPercent: Round2(util),
		MemoryUsedMB:       Round2(memUsed),
		MemoryTotalMB:      Round2(memTotal),
		MemoryPercent:      Round2(ratioPercent(memUsed, memTotal)),
		TemperatureC:       Round2(temp),
		PowerDrawW:         Round2(powerDraw),
		PowerLimitW:        Round2(powerLimit),
		PowerPercent:       Round2(ratioPercent(powerDraw, powerLimit)),
	}
}

// ratioPercent returns part/whole*100, or 0 when whole is not positive.
// Out-of-range results are passed through unclamped.
func ratioPercent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
