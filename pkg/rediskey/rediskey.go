package rediskey

import (
	"fmt"
	"strconv"
)

const (
	SequencePrefix = "seq"
	CampaignPrefix = "CMP"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildCampaignSequenceKey returns "seq:CMP:{companyID}:{day}".
func BuildCampaignSequenceKey(companyID int64, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s:%s", CampaignPrefix, strconv.FormatInt(companyID, 10), day))
}
