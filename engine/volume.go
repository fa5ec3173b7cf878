package engine

import "math"

// volumeTable maps a linear level in 1/127 steps to an output gain. The curve
// approximates the logarithmic response of the original hardware mixer.
var volumeTable = [129]float32{
	0.000000, 0.000031, 0.000153, 0.000397, 0.000702, 0.001129, 0.001648, 0.002228, 0.002930, 0.003723, 0.004608,
	0.005585, 0.006653, 0.007843, 0.009125, 0.010498, 0.011963, 0.013550, 0.015198, 0.016999, 0.018860, 0.020844,
	0.022919, 0.025117, 0.027406, 0.029816, 0.032319, 0.034943, 0.037660, 0.040468, 0.043428, 0.046480, 0.049623,
	0.052889, 0.056276, 0.059786, 0.063387, 0.067110, 0.070956, 0.074923, 0.078982, 0.083163, 0.087466, 0.091922,
	0.096469, 0.101138, 0.105930, 0.110843, 0.115879, 0.121036, 0.126347, 0.131748, 0.137303, 0.142979, 0.148778,
	0.154729, 0.160772, 0.166997, 0.173315, 0.179785, 0.186407, 0.193121, 0.200018, 0.207007, 0.214179, 0.221473,
	0.228919, 0.236488, 0.244209, 0.252083, 0.260079, 0.268258, 0.276559, 0.285012, 0.293649, 0.302408, 0.311319,
	0.320383, 0.329630, 0.339030, 0.348613, 0.358318, 0.368206, 0.378247, 0.388471, 0.398846, 0.409435, 0.420176,
	0.431068, 0.442144, 0.453403, 0.464815, 0.476410, 0.488189, 0.500150, 0.512293, 0.524650, 0.537158, 0.549850,
	0.562725, 0.575783, 0.589025, 0.602448, 0.616024, 0.629814, 0.643787, 0.657943, 0.672283, 0.686806, 0.701483,
	0.716373, 0.731418, 0.746675, 0.762117, 0.777711, 0.793549, 0.809570, 0.825804, 0.842223, 0.858856, 0.875672,
	0.892733, 0.909977, 0.927435, 0.945076, 0.962932, 0.981001, 1.000000, 1.000000,
}

// dlsVolumeTable is the DLS convex curve, 40*log10(v/127) dB, which is
// (v/127)^2 in amplitude.
var dlsVolumeTable [129]float32

func init() {
	for i := range dlsVolumeTable {
		x := float32(min(i, 127)) / 127
		dlsVolumeTable[i] = x * x
	}
}

func lookup(table *[129]float32, vol float32) float32 {
	v := vol * 127
	if v <= 0 || v != v {
		return table[0]
	}
	if v >= 127 {
		return table[127]
	}
	f := float32(math.Floor(float64(v)))
	idx := int(f)
	if f == v {
		return table[idx]
	}
	t := v - f
	return (1-t)*table[idx] + t*table[idx+1]
}

// LookupVolume converts a linear level in [0,1] to an output gain,
// interpolating linearly between table entries.
func LookupVolume(vol float32) float32 {
	return lookup(&volumeTable, vol)
}

// LookupDLSVolume is LookupVolume on the DLS curve.
func LookupDLSVolume(vol float32) float32 {
	return lookup(&dlsVolumeTable, vol)
}

// VolumeCache remembers the last lookup so a steady level does not pay for
// the interpolation on every sample. The zero value is ready to use.
type VolumeCache struct {
	dls bool
	key float32
	val float32
}

// Volume returns LookupVolume(vol), or LookupDLSVolume(vol) when dls is set.
func (c *VolumeCache) Volume(vol float32, dls bool) float32 {
	if dls != c.dls {
		c.dls = dls
		c.key = -1
	}
	if vol != c.key {
		c.key = vol
		if dls {
			c.val = LookupDLSVolume(vol)
		} else {
			c.val = LookupVolume(vol)
		}
	}
	return c.val
}
