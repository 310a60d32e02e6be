package eventsub

import "github.com/juju/errors"

// Configuration errors (spec.md §7 kind 1) fail the constructor or the
// operation synchronously; the subscription is never created or the
// requested send never happens. Callers distinguish them with
// errors.IsNotValid, the juju/errors convention also used throughout
// juju/juju's API facade constructors.

func errMissingTarget() error {
	return errors.NotValidf("subscription target")
}

func errMissingEventPackage() error {
	return errors.NotValidf("subscription event package name")
}

func errMissingAccept() error {
	return errors.NotValidf("subscription Accept media type(s)")
}

func errBodyWithoutContentType() error {
	return errors.NotValidf("body without a configured Content-Type")
}

func errMissingContact(reason string) error {
	return errors.NotValidf("notifier Contact (%s)", reason)
}

func errNotInitialSubscribe() error {
	return errors.NotValidf("initial request method (want SUBSCRIBE)")
}

func errMissingEvent() error {
	return errors.NotValidf("initial SUBSCRIBE Event header")
}
