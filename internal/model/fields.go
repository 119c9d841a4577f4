package model

// Field names of the freight-order extraction schema. The set is open:
// providers may return additional fields, which flow through untouched.
const (
	FieldClientCompanyName     = "client_company_name"
	FieldClientVATNumber       = "client_vat_number"
	FieldClientContactEmail    = "client_contact_email"
	FieldClientOfferedPrice    = "client_offered_price"
	FieldPickupAddress         = "pickup_address"
	FieldPickupPostcode        = "pickup_postcode"
	FieldPickupCity            = "pickup_city"
	FieldPickupCountry         = "pickup_country"
	FieldDeliveryAddress       = "delivery_address"
	FieldDeliveryPostcode      = "delivery_postcode"
	FieldDeliveryCity          = "delivery_city"
	FieldDeliveryCountry       = "delivery_country"
	FieldCargoWeightKg         = "cargo_weight_kg"
	FieldCargoPallets          = "cargo_pallets"
	FieldCargoLDM              = "cargo_ldm"
	FieldSpecialRequirements   = "special_requirements"
	FieldPickupDateStart       = "pickup_date_start"
	FieldPickupDateEnd         = "pickup_date_end"
	FieldDeliveryDateStart     = "delivery_date_start"
	FieldDeliveryDateEnd       = "delivery_date_end"
	FieldClientReferenceNumber = "client_reference_number"
)

// DefaultCriticalFields are the fields whose confidence alone can force
// manual review.
func DefaultCriticalFields() []string {
	return []string{
		FieldClientCompanyName,
		FieldClientVATNumber,
		FieldClientOfferedPrice,
		FieldPickupAddress,
		FieldDeliveryAddress,
	}
}
