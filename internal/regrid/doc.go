// Package regrid implements conservative bin resampling between an
// irregular source axis and a regular target axis.
//
// Each coordinate vector is read as a sequence of bin centers. Bin edges
// sit halfway between neighbouring centers, and the two outer edges are
// extrapolated by half the local spacing. A weight matrix maps source bins
// onto target bins by overlap fraction: row i holds the share of target
// bin i's width covered by each source bin, so interior rows sum to one and
// the width-integrated quantity is preserved.
//
// Target bins that are not fully inside the source coverage are flagged
// through an extra sentinel column. Their resampled values are NaN and
// callers are expected to trim them.
package regrid
