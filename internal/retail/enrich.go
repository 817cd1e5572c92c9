package retail

import (
	"time"

	"github.com/Mj37-com/medallion-warehouse-go/warehouse"
)

const (
	maskedEmail = "redacted@privacy.invalid"
	maskedPhone = "***"

	tierGold     = "gold"
	tierSilver   = "silver"
	tierStandard = "standard"
)

// silverTierCutoff: customers who joined before this date count as long-term.
var silverTierCutoff = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

var regionByCountry = map[string]string{
	"DE": "dach", "AT": "dach", "CH": "dach",
	"FR": "west", "NL": "west", "BE": "west",
	"PT": "south", "ES": "south", "IT": "south",
	"PL": "east", "CZ": "east",
}

// EnrichCustomers applies the privacy and tier projections to staged
// customer records: customers without GDPR consent get their email and phone
// masked, and every customer gets a derived tier attribute. Both touch only
// descriptive attributes, so enrichment never reopens a version by itself.
// The input batch is not modified.
func EnrichCustomers(batch warehouse.EntityBatch) warehouse.EntityBatch {
	enriched := make(warehouse.EntityBatch, 0, len(batch))

	for _, record := range batch {
		attributes := warehouse.CloneAttributes(record.Attributes)
		if attributes == nil {
			attributes = map[string]string{}
		}

		if attributes["gdpr_consent"] == "false" {
			attributes["email"] = maskedEmail
			attributes["phone"] = maskedPhone
		}

		attributes["tier"] = customerTier(attributes)

		enriched = append(enriched, warehouse.EntityRecord{
			NaturalKey: record.NaturalKey,
			Attributes: attributes,
		})
	}

	return enriched
}

func customerTier(attributes map[string]string) string {
	if attributes["vip_flag"] == "true" {
		return tierGold
	}

	joinedAt, err := time.Parse(time.RFC3339, attributes["joined_at"])
	if err == nil && joinedAt.Before(silverTierCutoff) {
		return tierSilver
	}

	return tierStandard
}

// EnrichStores adds the derived sales region to staged store records.
// The input batch is not modified.
func EnrichStores(batch warehouse.EntityBatch) warehouse.EntityBatch {
	enriched := make(warehouse.EntityBatch, 0, len(batch))

	for _, record := range batch {
		attributes := warehouse.CloneAttributes(record.Attributes)
		if attributes == nil {
			attributes = map[string]string{}
		}

		region, ok := regionByCountry[attributes["country"]]
		if !ok {
			region = "other"
		}
		attributes["region"] = region

		enriched = append(enriched, warehouse.EntityRecord{
			NaturalKey: record.NaturalKey,
			Attributes: attributes,
		})
	}

	return enriched
}
