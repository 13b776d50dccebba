package http

import (
	"slices"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/pourzone/internal/core/domain"
	"github.com/samirrijal/pourzone/internal/core/usecases"
)

type coordinateBody struct {
	Lat      *float64 `json:"lat"`
	Lng      *float64 `json:"lng"`
	Accuracy float64  `json:"accuracy"`
}

func (b coordinateBody) coordinate() (domain.Coordinate, bool) {
	if b.Lat == nil || b.Lng == nil {
		return domain.Coordinate{}, false
	}
	return domain.Coordinate{Lat: *b.Lat, Lng: *b.Lng, Accuracy: b.Accuracy}, true
}

// queryCoordinate reads lat/lng query parameters. Both are required.
func queryCoordinate(c *fiber.Ctx) (domain.Coordinate, string) {
	rawLat, rawLng := c.Query("lat"), c.Query("lng")
	if rawLat == "" || rawLng == "" {
		return domain.Coordinate{}, "lat and lng are required"
	}
	lat, err := strconv.ParseFloat(rawLat, 64)
	if err != nil {
		return domain.Coordinate{}, "lat must be a number"
	}
	lng, err := strconv.ParseFloat(rawLng, 64)
	if err != nil {
		return domain.Coordinate{}, "lng must be a number"
	}
	pt := domain.Coordinate{Lat: lat, Lng: lng}
	if !pt.Valid() {
		return domain.Coordinate{}, "lat/lng out of range"
	}
	return pt, ""
}

// ListZonesHandler returns the zone catalogue, paginated.
func ListZonesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		zones, err := deps.Zones.Zones(c.UserContext())
		if err != nil {
			return errFrom(c, err)
		}
		if c.QueryBool("active", false) {
			zones = slices.DeleteFunc(slices.Clone(zones), func(z domain.Zone) bool { return !z.Active() })
		}

		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 200 {
			limit = 100
		}

		total := len(zones)
		page := []domain.Zone{}
		if offset < total {
			page = zones[offset:min(offset+limit, total)]
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

// ReloadZonesHandler refetches the zone catalogue from the backend.
func ReloadZonesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		zones, err := deps.Zones.Reload(c.UserContext())
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(fiber.Map{"zone_count": len(zones)})
	}
}

type coverageResponse struct {
	Covered    bool                   `json:"covered"`
	Resolution *domain.ZoneResolution `json:"resolution"`
}

// CoverageHandler resolves the delivery zone covering a coordinate.
func CoverageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body coordinateBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		pt, ok := body.coordinate()
		if !ok {
			return errBadRequest(c, "lat and lng are required")
		}
		if !pt.Valid() {
			return errFrom(c, domain.ErrInvalidCoordinate)
		}

		res, err := deps.Zones.ResolveZone(c.UserContext(), pt)
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(coverageResponse{Covered: res.Covered(), Resolution: res})
	}
}

type quoteBody struct {
	coordinateBody
	OrderAmount float64 `json:"order_amount"`
}

// DeliveryQuoteHandler quotes delivery fee and time for an order at a coordinate.
func DeliveryQuoteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body quoteBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		pt, ok := body.coordinate()
		if !ok {
			return errBadRequest(c, "lat and lng are required")
		}
		if !pt.Valid() {
			return errFrom(c, domain.ErrInvalidCoordinate)
		}
		if body.OrderAmount < 0 {
			return errBadRequest(c, "order_amount must not be negative")
		}

		quote, err := deps.Zones.ValidateDelivery(c.UserContext(), pt, body.OrderAmount)
		if err != nil {
			return errFrom(c, err)
		}
		if quote == nil {
			return errNotFound(c, "no delivery zone for this location")
		}
		return c.JSON(quote)
	}
}

type nearbyResponse struct {
	Resolution *domain.ZoneResolution `json:"resolution"`
	Stores     []domain.Store         `json:"stores"`
}

// NearbyStoresHandler resolves the zone for a coordinate and the stores serving it.
func NearbyStoresHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		pt, msg := queryCoordinate(c)
		if msg != "" {
			return errBadRequest(c, msg)
		}

		ctx := c.UserContext()
		res, err := deps.Zones.ResolveZone(ctx, pt)
		if err != nil {
			return errFrom(c, err)
		}
		stores, err := deps.Stores.ResolveStores(ctx, pt, res)
		if err != nil {
			return errFrom(c, err)
		}
		if stores == nil {
			stores = []domain.Store{}
		}
		return c.JSON(nearbyResponse{Resolution: res, Stores: stores})
	}
}

// GeocodeHandler resolves an address to a coordinate.
func GeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Geocoder == nil {
			return errUnavailable(c, "geocoding not configured")
		}
		address := strings.TrimSpace(c.Query("address"))
		if address == "" {
			return errBadRequest(c, "address query parameter is required")
		}
		if len(address) > 500 {
			return errBadRequest(c, "address too long (max 500 characters)")
		}

		pt, err := deps.Geocoder.AddressToCoordinate(c.UserContext(), address)
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(fiber.Map{"address": address, "coordinate": pt})
	}
}

// ReverseGeocodeHandler resolves a coordinate to a structured address.
func ReverseGeocodeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Geocoder == nil {
			return errUnavailable(c, "geocoding not configured")
		}
		pt, msg := queryCoordinate(c)
		if msg != "" {
			return errBadRequest(c, msg)
		}

		addr, err := deps.Geocoder.CoordinateToAddress(c.UserContext(), pt)
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(addr)
	}
}

// AutocompleteHandler returns place predictions for partial input.
func AutocompleteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Geocoder == nil {
			return errUnavailable(c, "geocoding not configured")
		}
		input := c.Query("input")
		if len(input) > 200 {
			return errBadRequest(c, "input too long (max 200 characters)")
		}

		r := domain.AutocompleteRestrictions{
			Countries:    splitList(c.Query("countries")),
			Types:        splitList(c.Query("types")),
			RadiusMeters: c.QueryFloat("radius", 0),
		}
		if c.Query("lat") != "" || c.Query("lng") != "" {
			pt, msg := queryCoordinate(c)
			if msg != "" {
				return errBadRequest(c, msg)
			}
			r.Near = &pt
		}

		preds, err := usecases.CollectPredictions(deps.Geocoder.Autocomplete(c.UserContext(), input, r))
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(fiber.Map{"predictions": preds})
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// session looks up or creates the session named by the :id param.
func session(c *fiber.Ctx, deps *Dependencies) (*usecases.Session, error) {
	id := c.Params("id")
	if id == "" || len(id) > 128 {
		return nil, errBadRequest(c, "session id must be 1-128 characters")
	}
	s, err := deps.Locations.Session(c.UserContext(), id)
	if err != nil {
		return nil, errBadRequest(c, err.Error())
	}
	return s, nil
}

// snapshotResponse answers with the snapshot. Failures absorbed by the state machine
// are already in last_error; only rejected input is an HTTP error.
func snapshotResponse(c *fiber.Ctx, snap domain.LocationSnapshot, err error) error {
	switch domain.KindOf(err) {
	case domain.KindInvalidCoordinate, domain.KindNotFound:
		if snap.Phase != domain.PhaseError {
			return errFrom(c, err)
		}
	}
	return c.JSON(snap)
}

// GetLocationHandler returns the current location snapshot of a session.
func GetLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := session(c, deps)
		if s == nil {
			return err
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(s.Snapshot())
	}
}

type setLocationBody struct {
	coordinateBody
	Address string `json:"address"`
}

// SetLocationHandler sets a session's location from a coordinate or a typed address.
func SetLocationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body setLocationBody
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		pt, hasCoord := body.coordinate()
		address := strings.TrimSpace(body.Address)
		if !hasCoord && address == "" {
			return errBadRequest(c, "either lat/lng or address is required")
		}

		s, err := session(c, deps)
		if s == nil {
			return err
		}
		var snap domain.LocationSnapshot
		if hasCoord {
			snap, err = s.SetCoordinate(c.UserContext(), pt)
		} else {
			snap, err = s.SetAddress(c.UserContext(), address)
		}
		return snapshotResponse(c, snap, err)
	}
}

// LocateHandler asks the browser attached to the session for a device position.
func LocateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		opts := usecases.DefaultPositionOptions()
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&opts); err != nil {
				return errBadRequest(c, "invalid request body")
			}
		}

		s, err := session(c, deps)
		if s == nil {
			return err
		}
		snap, err := s.Locate(c.UserContext(), opts)
		return snapshotResponse(c, snap, err)
	}
}

// RefreshHandler re-resolves zone and stores for the session's current location.
func RefreshHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := session(c, deps)
		if s == nil {
			return err
		}
		snap, err := s.Refresh(c.UserContext())
		if snap.CurrentLocation == nil && err != nil {
			return newError(c, fiber.StatusConflict, "conflict", "session has no location yet")
		}
		return snapshotResponse(c, snap, err)
	}
}

// SelectStoreHandler selects one of the session's nearby stores.
func SelectStoreHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			StoreID string `json:"store_id"`
		}
		if err := c.BodyParser(&body); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if body.StoreID == "" {
			return errBadRequest(c, "store_id is required")
		}

		s, err := session(c, deps)
		if s == nil {
			return err
		}
		snap, err := s.SelectStore(c.UserContext(), body.StoreID)
		if err != nil {
			return errFrom(c, err)
		}
		return c.JSON(snap)
	}
}

// ClearSelectionHandler drops the session's selected store and zone.
func ClearSelectionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := session(c, deps)
		if s == nil {
			return err
		}
		return c.JSON(s.ClearSelection(c.UserContext()))
	}
}
