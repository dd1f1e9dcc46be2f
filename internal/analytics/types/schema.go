package types

import cbigquery "cloud.google.com/go/bigquery"

// DonationEventSchema is the column layout of DonationEventRow, used when the
// worker provisions the table.
func DonationEventSchema() cbigquery.Schema {
	required := func(name string, typ cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: typ, Required: true}
	}
	nullable := func(name string, typ cbigquery.FieldType) *cbigquery.FieldSchema {
		return &cbigquery.FieldSchema{Name: name, Type: typ}
	}
	return cbigquery.Schema{
		required("event_id", cbigquery.StringFieldType),
		required("event_type", cbigquery.StringFieldType),
		required("occurred_at", cbigquery.TimestampFieldType),
		required("table_name", cbigquery.StringFieldType),
		required("row_id", cbigquery.StringFieldType),
		required("op", cbigquery.StringFieldType),
		required("row_version", cbigquery.IntegerFieldType),
		nullable("status", cbigquery.StringFieldType),

		nullable("donation_id", cbigquery.StringFieldType),
		nullable("donor_id", cbigquery.StringFieldType),
		nullable("food_type", cbigquery.StringFieldType),
		nullable("quantity", cbigquery.NumericFieldType),
		nullable("unit", cbigquery.StringFieldType),
		nullable("expiration_date", cbigquery.TimestampFieldType),

		nullable("match_id", cbigquery.StringFieldType),
		nullable("recipient_id", cbigquery.StringFieldType),
		nullable("volunteer_id", cbigquery.StringFieldType),
		nullable("from_status", cbigquery.StringFieldType),
		nullable("action", cbigquery.StringFieldType),

		nullable("actor_id", cbigquery.StringFieldType),
		nullable("actor_role", cbigquery.StringFieldType),
		nullable("payload", cbigquery.JSONFieldType),
	}
}

// DonationEventPartition is the column the events table is partitioned by.
const DonationEventPartition = "occurred_at"
