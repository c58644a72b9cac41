package geofence

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"shiftbook/backend/internal/domain"
)

const EarthRadiusMeters = 6371000.0

var (
	ErrInvalidCoordinateFormat = errors.New("invalid coordinate format")
	ErrInvalidCoordinateRange  = errors.New("coordinate out of valid range")
	ErrStoreNotFound           = errors.New("store not found")
	ErrOutOfRange              = errors.New("outside allowed radius")
)

type StoreLookup interface {
	LookupStore(name string) (domain.Store, bool)
}

type Result struct {
	Valid          bool    `json:"valid"`
	DistanceMeters float64 `json:"distance_meters"`
	RadiusMeters   float64 `json:"radius_meters"`
	Reason         string  `json:"reason,omitempty"`
}

type Validator struct {
	stores        StoreLookup
	defaultRadius float64
}

func NewValidator(stores StoreLookup, defaultRadius float64) *Validator {
	if defaultRadius <= 0 {
		defaultRadius = 100
	}
	return &Validator{stores: stores, defaultRadius: defaultRadius}
}

// Validate checks coordinate ("lat,lng") against the named store's geofence.
// Out-of-range results still carry the computed distance.
func (v *Validator) Validate(coordinate string, storeName string) (Result, error) {
	lat, lng, err := ParseCoordinate(coordinate)
	if err != nil {
		return Result{Reason: err.Error()}, err
	}

	store, ok := v.stores.LookupStore(strings.TrimSpace(storeName))
	if !ok {
		return Result{Reason: ErrStoreNotFound.Error()}, fmt.Errorf("%w: %s", ErrStoreNotFound, storeName)
	}

	radius := store.RadiusMeters
	if radius <= 0 {
		radius = v.defaultRadius
	}

	distance := Distance(lat, lng, store.Latitude, store.Longitude)
	result := Result{DistanceMeters: distance, RadiusMeters: radius}
	if distance > radius {
		result.Reason = fmt.Sprintf("you are %.2f meters away from %s (allowed %.0f)", distance, store.Name, radius)
		return result, ErrOutOfRange
	}

	result.Valid = true
	return result, nil
}

func ParseCoordinate(raw string) (float64, float64, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 2 {
		return 0, 0, ErrInvalidCoordinateFormat
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinateFormat
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, ErrInvalidCoordinateFormat
	}
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return 0, 0, ErrInvalidCoordinateFormat
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return 0, 0, ErrInvalidCoordinateRange
	}
	return lat, lng, nil
}

// Distance is the Haversine great-circle distance in meters, rounded to 2 decimals.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if a > 1 {
		a = 1
	}
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return math.Round(EarthRadiusMeters*c*100) / 100
}

type StaticStores map[string]domain.Store

func NewStaticStores(stores []domain.Store) StaticStores {
	out := make(StaticStores, len(stores))
	for _, s := range stores {
		out[s.Name] = s
	}
	return out
}

func (s StaticStores) LookupStore(name string) (domain.Store, bool) {
	store, ok := s[name]
	return store, ok
}
