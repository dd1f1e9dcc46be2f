package enums

// UserRole maps to the user_role enum in Postgres.
type UserRole string

const (
	UserRoleDonor     UserRole = "donor"
	UserRoleRecipient UserRole = "recipient"
	UserRoleVolunteer UserRole = "volunteer"
)

var userRoles = enumOf("user role", UserRoleDonor, UserRoleRecipient, UserRoleVolunteer)

func (r UserRole) String() string { return string(r) }

func (r UserRole) IsValid() bool { return userRoles.has(r) }

func ParseUserRole(value string) (UserRole, error) { return userRoles.parse(value) }

// OrganizationType distinguishes individual donors from onboarded businesses.
type OrganizationType string

const (
	OrganizationIndividual OrganizationType = "individual"
	OrganizationBusiness   OrganizationType = "business"
)

func (o OrganizationType) IsValid() bool {
	return o == OrganizationIndividual || o == OrganizationBusiness
}

// BusinessType classifies business donors.
type BusinessType string

const (
	BusinessTypeRestaurant BusinessType = "restaurant"
	BusinessTypeHotel      BusinessType = "hotel"
	BusinessTypeResort     BusinessType = "resort"
	BusinessTypeCafe       BusinessType = "cafe"
	BusinessTypeCatering   BusinessType = "catering"
	BusinessTypeOther      BusinessType = "other"
)

var businessTypes = enumOf("business type",
	BusinessTypeRestaurant, BusinessTypeHotel, BusinessTypeResort,
	BusinessTypeCafe, BusinessTypeCatering, BusinessTypeOther,
)

func (b BusinessType) IsValid() bool { return businessTypes.has(b) }

// ParseBusinessType converts raw input into BusinessType. Blank means restaurant.
func ParseBusinessType(value string) (BusinessType, error) {
	if value == "" {
		return BusinessTypeRestaurant, nil
	}
	return businessTypes.parse(value)
}
