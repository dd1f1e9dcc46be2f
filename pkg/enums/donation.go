package enums

// DonationStatus maps to the donation_status enum in Postgres.
type DonationStatus string

const (
	DonationStatusAvailable DonationStatus = "available"
	DonationStatusClaimed   DonationStatus = "claimed"
	DonationStatusCompleted DonationStatus = "completed"
	DonationStatusExpired   DonationStatus = "expired"
)

var donationStatuses = enumOf("donation status",
	DonationStatusAvailable, DonationStatusClaimed, DonationStatusCompleted, DonationStatusExpired)

func (s DonationStatus) String() string { return string(s) }

func (s DonationStatus) IsValid() bool { return donationStatuses.has(s) }

func ParseDonationStatus(value string) (DonationStatus, error) { return donationStatuses.parse(value) }

// FoodType maps to the food_type enum in Postgres.
type FoodType string

const (
	FoodTypeFruits     FoodType = "fruits"
	FoodTypeVegetables FoodType = "vegetables"
	FoodTypeDairy      FoodType = "dairy"
	FoodTypeBakery     FoodType = "bakery"
	FoodTypeBreads     FoodType = "breads"
	FoodTypePrepared   FoodType = "prepared"
	FoodTypePackaged   FoodType = "packaged"
	FoodTypeFrozen     FoodType = "frozen"
	FoodTypeBeverages  FoodType = "beverages"
	FoodTypeSnacks     FoodType = "snacks"
	FoodTypeSweets     FoodType = "sweets"
	FoodTypeSpices     FoodType = "spices"
	FoodTypeRice       FoodType = "rice"
	FoodTypeDals       FoodType = "dals"
	FoodTypeFlours     FoodType = "flours"
	FoodTypePickles    FoodType = "pickles"
	FoodTypeDryFruits  FoodType = "dryfruits"
)

var foodTypes = enumOf("food type",
	FoodTypeFruits, FoodTypeVegetables, FoodTypeDairy, FoodTypeBakery, FoodTypeBreads,
	FoodTypePrepared, FoodTypePackaged, FoodTypeFrozen, FoodTypeBeverages, FoodTypeSnacks,
	FoodTypeSweets, FoodTypeSpices, FoodTypeRice, FoodTypeDals, FoodTypeFlours,
	FoodTypePickles, FoodTypeDryFruits,
)

func (f FoodType) IsValid() bool { return foodTypes.has(f) }

func ParseFoodType(value string) (FoodType, error) { return foodTypes.parse(value) }

// FoodTypes lists every category in declaration order.
func FoodTypes() []FoodType { return foodTypes.all() }

// QuantityUnit maps to the quantity_unit enum in Postgres.
type QuantityUnit string

const (
	UnitKilograms QuantityUnit = "kg"
	UnitPounds    QuantityUnit = "lbs"
	UnitLiters    QuantityUnit = "liters"
	UnitGallons   QuantityUnit = "gallons"
	UnitItems     QuantityUnit = "items"
	UnitBoxes     QuantityUnit = "boxes"
	UnitBags      QuantityUnit = "bags"
	UnitPortions  QuantityUnit = "portions"
	UnitServings  QuantityUnit = "servings"
)

var quantityUnits = enumOf("quantity unit",
	UnitKilograms, UnitPounds, UnitLiters, UnitGallons, UnitItems,
	UnitBoxes, UnitBags, UnitPortions, UnitServings,
)

func (u QuantityUnit) IsValid() bool { return quantityUnits.has(u) }

func ParseQuantityUnit(value string) (QuantityUnit, error) { return quantityUnits.parse(value) }
