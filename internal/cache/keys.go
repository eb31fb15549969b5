package cache

import "fmt"

func DescendantsKey(activity string) string {
	return fmt.Sprintf("taxonomy:descendants:%s", activity)
}

func ClosureOrgsKey(activity string) string {
	return fmt.Sprintf("taxonomy:orgs:%s", activity)
}

func OrganizationKey(name string) string {
	return fmt.Sprintf("org:card:%s", name)
}
