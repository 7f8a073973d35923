// Package inventory resolves an appliance into the cookbooks it deploys. It
// walks the appliance's steps through the AMP catalogue, solves every
// role/environment pair with knife and stores the merged result.
package inventory
