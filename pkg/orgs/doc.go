// Package orgs manages organizations and their memberships.
//
// A membership row ties a user to an organization with a status. Invited
// members have been created through the invitation flow but have not set up
// their account yet; archived members are retained for history but cannot
// log in to the organization.
package orgs
